// Package logx wraps zerolog behind a small structured-logging API.
//
// Components receive a Logger by injection and never touch zerolog
// directly. A Logger created from a Service stays live across Apply()
// calls, so log level and sinks can be changed at runtime without
// rebuilding the components that hold the logger.
package logx
