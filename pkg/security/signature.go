package security

import (
	"crypto/hmac"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
)

// SignHMACHex returns the hex-encoded HMAC-SHA256 of message under key. Both
// payment providers sign with this scheme: Razorpay over "orderID|paymentID",
// Stripe over "timestamp.rawBody".
func SignHMACHex(key, message string) string {
	mac := hmac.New(sha256.New, []byte(key))
	mac.Write([]byte(message))
	return hex.EncodeToString(mac.Sum(nil))
}

// ConstantTimeEquals compares two signatures without leaking timing
// information. A length mismatch is unequal. Every signature and secret
// comparison in the codebase goes through here, never ==.
func ConstantTimeEquals(a, b string) bool {
	if len(a) != len(b) {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}

// HashGuestKey derives the quota subject key for an anonymous client from a
// process-wide salt and the client IP. One-way so raw IPs never reach storage.
func HashGuestKey(salt, clientIP string) string {
	sum := sha256.Sum256([]byte(salt + ":" + clientIP))
	return hex.EncodeToString(sum[:])
}
