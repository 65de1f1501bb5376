package service

import "strings"

// MaxCustomCodeLength matches the width of the code column.
const MaxCustomCodeLength = 64

// reservedCodes are first path segments the router serves itself.
var reservedCodes = map[string]struct{}{
	"admin":     {},
	"api":       {},
	"dashboard": {},
	"healthz":   {},
	"login":     {},
	"logout":    {},
	"metrics":   {},
	"ping":      {},
	"signup":    {},
	"static":    {},
	"url":       {},
	"urls":      {},
}

// IsBlacklisted reports whether a custom code must be refused. Reserved
// words match case-insensitively; allowed symbols are [A-Za-z0-9_-].
func IsBlacklisted(code string) bool {
	if code == "" || len(code) > MaxCustomCodeLength {
		return true
	}
	if _, reserved := reservedCodes[strings.ToLower(code)]; reserved {
		return true
	}

	for _, c := range code {
		switch {
		case c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z', c >= '0' && c <= '9', c == '_', c == '-':
		default:
			return true
		}
	}

	return false
}
