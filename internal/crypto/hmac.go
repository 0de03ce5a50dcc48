package crypto

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"fmt"
	"strconv"
	"time"
)

// Header names set by RequestSigner.
const (
	HeaderKey       = "X-Simlink-Key"
	HeaderTimestamp = "X-Simlink-Timestamp"
	HeaderSignature = "X-Simlink-Signature"
)

// RequestSigner signs outbound HTTP requests with HMAC-SHA256 over
// timestamp+method+path+body.
type RequestSigner struct {
	Key    string
	Secret string
}

// Headers returns the signing headers for a request made now.
func (s *RequestSigner) Headers(method, path, body string) map[string]string {
	return s.HeadersAt(method, path, body, time.Now().Unix())
}

// HeadersAt is like Headers with a caller-supplied Unix timestamp.
func (s *RequestSigner) HeadersAt(method, path, body string, unixTS int64) map[string]string {
	ts := strconv.FormatInt(unixTS, 10)
	return map[string]string{
		HeaderKey:       s.Key,
		HeaderTimestamp: ts,
		HeaderSignature: hmacSHA256Base64([]byte(s.Secret), ts+method+path+body),
	}
}

// Verify reports whether sig is the signature for the given request parts.
func (s *RequestSigner) Verify(method, path, body, ts, sig string) bool {
	want := hmacSHA256Base64([]byte(s.Secret), ts+method+path+body)
	return hmac.Equal([]byte(want), []byte(sig))
}

// String returns a redacted representation suitable for logging.
func (s *RequestSigner) String() string {
	return fmt.Sprintf("RequestSigner{key=%s, secret=%s}", Redact(s.Key), Redact(s.Secret))
}

// Redact keeps the first four characters of a secret.
func Redact(v string) string {
	if len(v) <= 4 {
		return "****"
	}
	return v[:4] + "****"
}

// hmacSHA256Base64 computes HMAC-SHA256 of message using key and returns the
// result as a base64 standard-encoded string.
func hmacSHA256Base64(key []byte, message string) string {
	mac := hmac.New(sha256.New, key)
	mac.Write([]byte(message))
	return base64.StdEncoding.EncodeToString(mac.Sum(nil))
}
