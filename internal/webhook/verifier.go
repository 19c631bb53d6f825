package webhook

import (
	"crypto/hmac"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"
	"time"

	"outreach_backend/platform/apperr"
)

// Verifier authenticates a raw delivery before any parsing happens.
// Implementations must not leak timing information about the secret.
type Verifier interface {
	Verify(body []byte, headers map[string]string) error
}

const (
	// HeaderSignature carries the hex HMAC-SHA256 of the request body.
	HeaderSignature = "X-Webhook-Signature"
	// HeaderSignatureTimestamp carries the unix timestamp covered by a
	// timestamped signature.
	HeaderSignatureTimestamp = "X-Signature-Timestamp"
	// HeaderSignedSignature carries the versioned timestamped signature.
	HeaderSignedSignature = "X-Signature"
)

const opVerify = "webhook.verifier.verify"

// HMACVerifier checks an HMAC-SHA256 hex digest of the raw body
// against a shared signing key.
type HMACVerifier struct {
	key []byte
}

func NewHMACVerifier(key string) *HMACVerifier {
	return &HMACVerifier{key: []byte(key)}
}

func (v *HMACVerifier) Verify(body []byte, headers map[string]string) error {
	if len(v.key) == 0 {
		return apperr.Unauthorized("signing key not configured").WithOp(opVerify)
	}
	sig := headers[HeaderSignature]
	if sig == "" {
		return apperr.Unauthorized("missing signature header").WithOp(opVerify)
	}
	mac := hmac.New(sha256.New, v.key)
	mac.Write(body)
	expected := hex.EncodeToString(mac.Sum(nil))
	if subtle.ConstantTimeCompare([]byte(expected), []byte(strings.ToLower(sig))) != 1 {
		return apperr.Unauthorized("signature mismatch").WithOp(opVerify)
	}
	return nil
}

// SignedTimestampVerifier checks the interactive-action scheme: the
// signature covers "v0:<timestamp>:<body>" and the timestamp must be
// within the freshness tolerance to defeat replayed deliveries.
type SignedTimestampVerifier struct {
	secret    []byte
	tolerance time.Duration
	now       func() time.Time
}

func NewSignedTimestampVerifier(secret string) *SignedTimestampVerifier {
	return &SignedTimestampVerifier{
		secret:    []byte(secret),
		tolerance: 5 * time.Minute,
		now:       time.Now,
	}
}

func (v *SignedTimestampVerifier) Verify(body []byte, headers map[string]string) error {
	if len(v.secret) == 0 {
		return apperr.Unauthorized("signing secret not configured").WithOp(opVerify)
	}
	ts := headers[HeaderSignatureTimestamp]
	sig := headers[HeaderSignedSignature]
	if ts == "" || sig == "" {
		return apperr.Unauthorized("missing signature headers").WithOp(opVerify)
	}
	unix, err := strconv.ParseInt(ts, 10, 64)
	if err != nil {
		return apperr.Unauthorized("malformed signature timestamp").WithOp(opVerify)
	}
	age := v.now().Sub(time.Unix(unix, 0))
	if age > v.tolerance || age < -v.tolerance {
		return apperr.Unauthorized("signature timestamp outside tolerance").WithOp(opVerify)
	}
	mac := hmac.New(sha256.New, v.secret)
	fmt.Fprintf(mac, "v0:%s:", ts)
	mac.Write(body)
	expected := "v0=" + hex.EncodeToString(mac.Sum(nil))
	if subtle.ConstantTimeCompare([]byte(expected), []byte(sig)) != 1 {
		return apperr.Unauthorized("signature mismatch").WithOp(opVerify)
	}
	return nil
}

// APIKeyVerifier checks a static bearer key in the Authorization
// header. Used by the inbound-reply provider.
type APIKeyVerifier struct {
	key []byte
}

func NewAPIKeyVerifier(key string) *APIKeyVerifier {
	return &APIKeyVerifier{key: []byte(key)}
}

func (v *APIKeyVerifier) Verify(_ []byte, headers map[string]string) error {
	if len(v.key) == 0 {
		return apperr.Unauthorized("api key not configured").WithOp(opVerify)
	}
	auth := headers["Authorization"]
	presented, ok := strings.CutPrefix(auth, "Bearer ")
	if !ok {
		return apperr.Unauthorized("missing bearer token").WithOp(opVerify)
	}
	if subtle.ConstantTimeCompare(v.key, []byte(presented)) != 1 {
		return apperr.Unauthorized("invalid api key").WithOp(opVerify)
	}
	return nil
}
