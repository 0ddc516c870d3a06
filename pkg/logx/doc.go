// Package logx configures structured logging for the weather task.
//
// It is a small wrapper (logx.Logger) on top of zerolog that keeps:
//   - Console output readable (short timestamp + short caller) on stderr,
//     leaving stdout to notification fallbacks and completion payloads
//   - File output JSON-structured
//   - Levels and sinks swappable at runtime (Service.Apply) for config reloads
package logx
