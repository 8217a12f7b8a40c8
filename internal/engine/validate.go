package engine

import (
	"strconv"
	"strings"
	"unicode"

	"github.com/rickgao/papertrade/internal/quote"
)

const maxUserIDLen = 128

// ParseShares parses a share count typed by a user. Only plain ASCII digits
// are accepted; signs, decimals, exponents and zero are rejected.
func ParseShares(s string) (int64, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, newError(KindInvalidInput, nil, "shares required")
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return 0, newError(KindInvalidInput, nil, "shares %q must be a positive whole number", s)
		}
	}
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0, newError(KindInvalidInput, nil, "shares %q out of range", s)
	}
	if n == 0 {
		return 0, newError(KindInvalidInput, nil, "shares must be positive")
	}
	return n, nil
}

func validateUserID(userID string) error {
	if strings.TrimSpace(userID) == "" {
		return newError(KindInvalidInput, nil, "user id required")
	}
	if len(userID) > maxUserIDLen {
		return newError(KindInvalidInput, nil, "user id longer than %d bytes", maxUserIDLen)
	}
	if strings.IndexFunc(userID, unicode.IsControl) >= 0 {
		return newError(KindInvalidInput, nil, "user id contains control characters")
	}
	return nil
}

func validateSymbol(symbol string) (string, error) {
	sym := quote.NormalizeSymbol(symbol)
	if sym == "" {
		return "", newError(KindInvalidInput, nil, "symbol required")
	}
	if strings.IndexFunc(sym, func(r rune) bool { return unicode.IsControl(r) || unicode.IsSpace(r) || r == '/' }) >= 0 {
		return "", newError(KindInvalidInput, nil, "symbol %q is malformed", sym)
	}
	return sym, nil
}

func validateTrade(userID, symbol string, shares int64) (string, error) {
	if err := validateUserID(userID); err != nil {
		return "", err
	}
	sym, err := validateSymbol(symbol)
	if err != nil {
		return "", err
	}
	if shares <= 0 {
		return "", newError(KindInvalidInput, nil, "shares must be positive, got %d", shares)
	}
	return sym, nil
}
