package service

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"
	"time"

	"flow402/pkg/apperror"
)

// signatureSkew is the default maximum allowed clock drift between the
// timestamp embedded in a signature and the verifier's own clock.
const signatureSkew = 300 * time.Second

// HMACSignatureVerifier implements ports.SignatureVerifier using
// HMAC-SHA256 over str(t) + "." + body, per the gateway's x-f402-sig
// grammar.
type HMACSignatureVerifier struct {
	skew time.Duration
}

// NewHMACSignatureVerifier creates a verifier using the default ±300s skew
// window. Pass a non-zero skew to override it.
func NewHMACSignatureVerifier(skew time.Duration) *HMACSignatureVerifier {
	if skew <= 0 {
		skew = signatureSkew
	}
	return &HMACSignatureVerifier{skew: skew}
}

// Verify parses sigHeaderValue ("t=...,v1=..." pairs, whitespace-tolerant,
// order-independent, extra pairs ignored) and validates it against
// bodyShaHeaderValue and the signing secret. Returns the embedded timestamp
// on success.
func (s *HMACSignatureVerifier) Verify(secret, sigHeaderValue, bodyShaHeaderValue string, body []byte, now time.Time) (int64, error) {
	if strings.TrimSpace(sigHeaderValue) == "" {
		return 0, apperror.ErrInvalidSignature(apperror.ReasonMissingSignatureHeader)
	}

	t, v1, err := parseSigHeader(sigHeaderValue)
	if err != nil {
		return 0, apperror.ErrInvalidSignature(apperror.ReasonInvalidSignatureFormat)
	}

	if abs(now.Unix()-t) > int64(s.skew/time.Second) {
		return 0, apperror.ErrInvalidSignature(apperror.ReasonTimestampOutOfWindow)
	}

	if bodyShaHeaderValue == "" {
		return 0, apperror.ErrInvalidSignature(apperror.ReasonMissingBodyHash)
	}
	bodySHA := sha256.Sum256(body)
	expectedSHA := hex.EncodeToString(bodySHA[:])
	if !hmac.Equal([]byte(strings.ToLower(bodyShaHeaderValue)), []byte(expectedSHA)) {
		return 0, apperror.ErrInvalidSignature(apperror.ReasonBodyHashMismatch)
	}

	v1Bytes, err := hex.DecodeString(v1)
	if err != nil {
		return 0, apperror.ErrInvalidSignature(apperror.ReasonInvalidSignatureFormat)
	}

	digest := digest(secret, t, body)
	if !hmac.Equal(digest, v1Bytes) {
		return 0, apperror.ErrInvalidSignature(apperror.ReasonSignatureMismatch)
	}

	return t, nil
}

// Sign produces a "t=...,v1=..." header value for an outbound body signed
// at now, used for the 402 paywall envelope.
func (s *HMACSignatureVerifier) Sign(secret string, body []byte, now time.Time) string {
	t := now.Unix()
	d := digest(secret, t, body)
	return fmt.Sprintf("t=%d,v1=%s", t, hex.EncodeToString(d))
}

// digest computes HMAC_SHA256(secret, str(t) + "." + body).
func digest(secret string, t int64, body []byte) []byte {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(strconv.FormatInt(t, 10)))
	mac.Write([]byte("."))
	mac.Write(body)
	return mac.Sum(nil)
}

// parseSigHeader splits a comma-separated "t=...,v1=..." value into its two
// required fields, tolerating whitespace and extra unknown pairs.
func parseSigHeader(value string) (t int64, v1 string, err error) {
	var haveT, haveV1 bool

	for _, pair := range strings.Split(value, ",") {
		pair = strings.TrimSpace(pair)
		if pair == "" {
			continue
		}
		kv := strings.SplitN(pair, "=", 2)
		if len(kv) != 2 {
			continue
		}
		key := strings.TrimSpace(kv[0])
		val := strings.TrimSpace(kv[1])

		switch key {
		case "t":
			parsed, perr := strconv.ParseInt(val, 10, 64)
			if perr != nil {
				return 0, "", fmt.Errorf("invalid t: %w", perr)
			}
			t = parsed
			haveT = true
		case "v1":
			v1 = strings.ToLower(val)
			haveV1 = true
		}
	}

	if !haveT || !haveV1 {
		return 0, "", fmt.Errorf("missing t or v1")
	}
	return t, v1, nil
}

func abs(n int64) int64 {
	if n < 0 {
		return -n
	}
	return n
}
