// Package jobapi is the message-based job management surface shared by the
// HTTP handlers, the CLI and agent tool calls. Every operation takes plain
// strings and returns a human-readable string; parse problems come back as
// clarifying messages, never as errors.
package jobapi
