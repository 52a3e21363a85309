package contracts

import (
	"fmt"
	"strings"
)

// ToProviderCode converts SH600000 to sh.600000
func ToProviderCode(code string) (string, error) {
	code = strings.ToUpper(strings.TrimSpace(code))
	if len(code) != 8 {
		return "", fmt.Errorf("invalid instrument code %q", code)
	}
	exchange := code[:2]
	if exchange != "SH" && exchange != "SZ" && exchange != "BJ" {
		return "", fmt.Errorf("unknown exchange in %q", code)
	}
	return strings.ToLower(exchange) + "." + code[2:], nil
}

// FromProviderCode converts sh.600000 to SH600000
func FromProviderCode(code string) (string, error) {
	parts := strings.SplitN(strings.TrimSpace(code), ".", 2)
	if len(parts) != 2 || len(parts[0]) != 2 || len(parts[1]) != 6 {
		return "", fmt.Errorf("invalid provider code %q", code)
	}
	return strings.ToUpper(parts[0]) + parts[1], nil
}

// CodeFromSymbol maps a bare six digit symbol to its exchange-prefixed code.
// Shanghai listings start with 6 (main board) or 9 (B shares); everything
// else on the two mainland boards is Shenzhen.
func CodeFromSymbol(symbol string) (string, error) {
	symbol = strings.TrimSpace(symbol)
	if len(symbol) != 6 {
		return "", fmt.Errorf("invalid symbol %q", symbol)
	}
	for _, r := range symbol {
		if r < '0' || r > '9' {
			return "", fmt.Errorf("invalid symbol %q", symbol)
		}
	}
	switch symbol[0] {
	case '6', '9':
		return "SH" + symbol, nil
	default:
		return "SZ" + symbol, nil
	}
}

// IsAShare reports whether a provider code is a Shanghai or Shenzhen A share
// (indices and funds share the code space and are filtered out)
func IsAShare(providerCode string) bool {
	switch {
	case strings.HasPrefix(providerCode, "sh.60"), strings.HasPrefix(providerCode, "sh.68"):
		return true
	case strings.HasPrefix(providerCode, "sz.00"), strings.HasPrefix(providerCode, "sz.30"):
		return true
	}
	return false
}
