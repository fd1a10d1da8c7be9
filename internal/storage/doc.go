// Package storage persists the job collection as a single JSON document.
//
// Every save rewrites the whole document through a temp file in the same
// directory followed by a rename, so a crash mid-write leaves the previous
// document intact. Loading never fails: a missing or corrupt document is
// treated as an empty collection.
package storage
