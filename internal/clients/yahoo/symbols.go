package yahoo

import "strings"

// QualifySymbol upper-cases a bare ticker and appends the exchange suffix.
// Symbols that already carry a suffix and index symbols (^NSEI) are kept as-is.
func QualifySymbol(symbol, suffix string) string {
	symbol = strings.ToUpper(strings.TrimSpace(symbol))
	if symbol == "" || suffix == "" {
		return symbol
	}
	if strings.HasPrefix(symbol, "^") || strings.Contains(symbol, ".") {
		return symbol
	}
	return symbol + strings.ToUpper(suffix)
}

// StripSuffix removes the exchange suffix from a qualified symbol
func StripSuffix(symbol, suffix string) string {
	return strings.TrimSuffix(strings.ToUpper(symbol), strings.ToUpper(suffix))
}
