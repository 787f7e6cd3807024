// Package tgui holds small Telegram UI helpers: inline keyboards, callback
// data ("plugin:action:payload") and a legacy-Markdown text builder.
package tgui
