package gateway

import (
	"crypto/sha512"
	"encoding/hex"
)

// Signature derives the webhook authenticity signature the provider attaches
// to notifications: sha512 over order number, status code, the gross amount
// string as sent on the wire, and the shared server key.
func Signature(orderNumber, statusCode, grossAmount, serverKey string) string {
	sum := sha512.Sum512([]byte(orderNumber + statusCode + grossAmount + serverKey))
	return hex.EncodeToString(sum[:])
}
