// Package logx configures pennylane's structured logging.
//
// Logger is a small value type on top of zerolog:
//   - console output stays human readable (short timestamp + file:line)
//   - the optional file sink is JSON
//   - the optional Telegram sink forwards WARN+ lines to an operator chat,
//     rate limited and never blocking the caller
//
// Chat and user identifiers must go through Redact before they are logged.
package logx
