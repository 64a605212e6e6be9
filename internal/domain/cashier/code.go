package cashier

import "strings"

const maxCodeLen = 50

// NormalizeCode upper-cases and strips everything but letters and digits,
// so "ab-12 cd" and "AB12CD" are the same transaction.
func NormalizeCode(code string) string {
	code = strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z':
			return r - 'a' + 'A'
		case r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			return r
		}
		return -1
	}, code)
	if len(code) > maxCodeLen {
		code = code[:maxCodeLen]
	}
	return code
}
