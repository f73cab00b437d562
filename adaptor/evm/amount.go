package evm

import (
	"fmt"
	"math/big"
	"strings"
)

// orderScaleDecimals is the fixed-point scale the exchange contract expects
// for order quantities and prices.
const orderScaleDecimals = 18

func normalizeSymbol(symbol string) string {
	return strings.ToUpper(strings.TrimSpace(symbol))
}

// parseAmount converts a decimal string to the token's smallest unit.
// "1.5" with 6 decimals becomes 1500000. More fractional digits than the
// token has decimals is an error, not a silent truncation.
func parseAmount(amount string, decimals uint8) (*big.Int, error) {
	amount = strings.TrimSpace(amount)
	if amount == "" {
		return nil, fmt.Errorf("empty amount")
	}
	whole, frac, _ := strings.Cut(amount, ".")
	if strings.ContainsAny(whole, "+-") {
		return nil, fmt.Errorf("amount %q must be positive", amount)
	}
	if len(frac) > int(decimals) {
		return nil, fmt.Errorf("amount %q has more than %d decimal places", amount, decimals)
	}
	digits := whole + frac + strings.Repeat("0", int(decimals)-len(frac))
	out, ok := new(big.Int).SetString(digits, 10)
	if !ok {
		return nil, fmt.Errorf("malformed amount %q", amount)
	}
	return out, nil
}
