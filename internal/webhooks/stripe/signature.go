package stripewebhook

import (
	"strings"

	pkgerrors "github.com/promptlens/promptlens-backend/pkg/errors"
	"github.com/promptlens/promptlens-backend/pkg/security"
)

// signatureHeader is the parsed form of a Stripe-Signature header. Key
// rotation means a delivery may carry several v1 candidates; any single
// match accepts the payload.
type signatureHeader struct {
	timestamp  string
	candidates []string
}

func parseSignatureHeader(header string) (*signatureHeader, error) {
	parsed := &signatureHeader{}
	for _, element := range strings.Split(header, ",") {
		parts := strings.SplitN(strings.TrimSpace(element), "=", 2)
		if len(parts) != 2 {
			continue
		}
		switch parts[0] {
		case "t":
			parsed.timestamp = parts[1]
		case "v1":
			parsed.candidates = append(parsed.candidates, parts[1])
		}
	}
	if parsed.timestamp == "" || len(parsed.candidates) == 0 {
		return nil, pkgerrors.New(pkgerrors.CodeSignatureInvalid, "malformed signature header")
	}
	return parsed, nil
}

// VerifySignature checks the raw webhook body against the Stripe-Signature
// header. The signed payload is "<timestamp>.<rawBody>"; comparison is
// constant-time per candidate.
func VerifySignature(secret, header string, body []byte) error {
	parsed, err := parseSignatureHeader(header)
	if err != nil {
		return err
	}
	expected := security.SignHMACHex(secret, parsed.timestamp+"."+string(body))
	for _, candidate := range parsed.candidates {
		if security.ConstantTimeEquals(expected, candidate) {
			return nil
		}
	}
	return pkgerrors.New(pkgerrors.CodeSignatureInvalid, "webhook signature mismatch")
}
