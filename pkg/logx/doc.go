// Package logx configures homebot's structured logging.
//
// A small wrapper (logx.Logger) on top of zerolog keeps:
//   - Console output readable (short timestamp + short caller)
//   - File output JSON-structured
//   - An optional owner sink (min-level + per-minute rate limit)
package logx
