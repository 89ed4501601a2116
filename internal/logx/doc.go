// Package logx is the hub's structured logger: a small value-type wrapper over
// zerolog that keeps console output readable (short timestamp and caller) and
// file output JSON-structured. The Service can swap level and sinks at runtime
// so a config reload takes effect without rebuilding loggers held elsewhere.
package logx
