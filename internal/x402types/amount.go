package x402types

import (
	"fmt"
	"math/big"
	"strings"
)

// ParseAmount converts a decimal string like "0.0025" into an atomic amount
// at the given decimal precision. Unlike a lenient parser, this rejects
// anything that would lose precision: negative amounts, more fractional
// digits than decimals allows, and non-digit characters.
func ParseAmount(amount string, decimals int) (*big.Int, error) {
	if amount == "" {
		return nil, fmt.Errorf("empty amount")
	}
	if strings.HasPrefix(amount, "-") {
		return nil, fmt.Errorf("negative amount: %s", amount)
	}

	parts := strings.SplitN(amount, ".", 2)
	if len(parts) > 2 {
		return nil, fmt.Errorf("invalid amount format: %s", amount)
	}

	intStr := parts[0]
	if intStr == "" {
		return nil, fmt.Errorf("invalid amount format: %s", amount)
	}
	if !isASCIIDigits(intStr) {
		return nil, fmt.Errorf("non-digit characters in amount: %s", amount)
	}

	intPart, ok := new(big.Int).SetString(intStr, 10)
	if !ok {
		return nil, fmt.Errorf("invalid integer part: %s", intStr)
	}

	decPart := new(big.Int)
	if len(parts) == 2 && parts[1] != "" {
		decStr := parts[1]
		if !isASCIIDigits(decStr) {
			return nil, fmt.Errorf("non-digit characters in amount: %s", amount)
		}
		if len(decStr) > decimals {
			return nil, fmt.Errorf("amount %s has more than %d fractional digits", amount, decimals)
		}
		decStr += strings.Repeat("0", decimals-len(decStr))
		decPart, ok = new(big.Int).SetString(decStr, 10)
		if !ok {
			return nil, fmt.Errorf("invalid decimal part: %s", parts[1])
		}
	}

	multiplier := new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(decimals)), nil)
	result := new(big.Int).Mul(intPart, multiplier)
	result.Add(result, decPart)
	return result, nil
}

// FormatAmount renders an atomic amount as a decimal string at the given
// precision, trimming trailing zero fractional digits.
func FormatAmount(amount *big.Int, decimals int) string {
	if amount == nil {
		return "0"
	}

	divisor := new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(decimals)), nil)
	quotient, remainder := new(big.Int).DivMod(amount, divisor, new(big.Int))

	decStr := remainder.String()
	if len(decStr) < decimals {
		decStr = strings.Repeat("0", decimals-len(decStr)) + decStr
	}
	decStr = strings.TrimRight(decStr, "0")

	if decStr == "" {
		return quotient.String()
	}
	return quotient.String() + "." + decStr
}

func isASCIIDigits(s string) bool {
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
