package pos

import (
	"fmt"
	"math/rand"
	"time"
)

// OrderNumberAttempts bounds the sequence-collision retry loop before the
// generator falls back to a timestamp+random suffix.
const OrderNumberAttempts = 5

const orderNumberPrefix = "ORD"

// OrderNumberDatePrefix returns the date-scoped prefix, e.g. "ORD-20260830-".
func OrderNumberDatePrefix(t time.Time) string {
	return fmt.Sprintf("%s-%s-", orderNumberPrefix, t.Format("20060102"))
}

// FormatOrderNumber builds the deterministic candidate for a sequence slot.
func FormatOrderNumber(t time.Time, seq int) string {
	return fmt.Sprintf("%s%04d", OrderNumberDatePrefix(t), seq)
}

// FallbackOrderNumber is used when the sequence scheme keeps colliding under
// concurrent creation. Uniqueness is still enforced by the database.
func FallbackOrderNumber(t time.Time) string {
	return fmt.Sprintf("%s-%d-%04d", orderNumberPrefix, t.UnixNano()/1e6, rand.Intn(10000))
}
