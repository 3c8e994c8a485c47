package gateway

import (
	"fmt"
	"math"
	"strconv"
)

// FormatGross renders integer cents as the provider's decimal amount string,
// e.g. 2000000 -> "20000.00".
func FormatGross(cents int64) string {
	return fmt.Sprintf("%d.%02d", cents/100, cents%100)
}

// ParseGrossCents converts the provider's decimal amount string to cents.
// Malformed input yields 0; amounts are never trusted without the signature.
func ParseGrossCents(s string) int64 {
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0
	}
	return int64(math.Round(f * 100))
}
