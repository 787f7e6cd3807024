package logx

import (
	"crypto/sha256"
	"encoding/hex"
	"strconv"
)

// Redact returns a short, stable fingerprint of a Telegram id: the first
// 8 hex chars of sha256 over its decimal form. Use it for every chat or user
// id that ends up in a log line.
func Redact(id int64) string {
	sum := sha256.Sum256([]byte(strconv.FormatInt(id, 10)))
	return "#" + hex.EncodeToString(sum[:4])
}
