package liqpay

import (
	"crypto/sha1"
	"crypto/subtle"
	"encoding/base64"
)

// Sign computes the LiqPay request signature for a payload: the base64
// encoding of sha1(privateKey + payload + privateKey). The payload is the
// base64-encoded request data, exactly as transmitted.
func Sign(privateKey, payload string) string {
	h := sha1.New()
	h.Write([]byte(privateKey))
	h.Write([]byte(payload))
	h.Write([]byte(privateKey))
	return base64.StdEncoding.EncodeToString(h.Sum(nil))
}

// VerifySignature recomputes the signature over payload and compares it to
// candidate in constant time. It returns a plain boolean; callers reject
// mismatches without revealing whether the payload itself was parseable.
func VerifySignature(privateKey, payload, candidate string) bool {
	expected := Sign(privateKey, payload)
	return subtle.ConstantTimeCompare([]byte(expected), []byte(candidate)) == 1
}
