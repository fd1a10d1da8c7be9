// Package logx is cronbot's structured logging layer.
//
// Logger wraps zerolog with typed field helpers and a short file:line caller.
// Service owns the live sink set (console, JSON file, notifier) and swaps it
// when the config is reloaded; loggers derived from it follow the swap.
package logx
