package googleid

import (
	"context"
	"errors"
	"strings"
	"time"

	"google.golang.org/api/idtoken"

	"github.com/promptlens/promptlens-backend/pkg/config"
	pkgerrors "github.com/promptlens/promptlens-backend/pkg/errors"
)

const (
	issuerHTTPS = "https://accounts.google.com"
	issuerPlain = "accounts.google.com"
)

var errClientIDRequired = errors.New("google client id is required")

// Identity is the subset of a verified Google ID token used for sign-in.
type Identity struct {
	Subject       string
	Email         string
	EmailVerified bool
	Name          string
}

// validateFunc matches idtoken.Validate so tests can swap the network call.
type validateFunc func(ctx context.Context, token, audience string) (*idtoken.Payload, error)

// Verifier validates Google ID tokens against the configured OAuth client.
type Verifier struct {
	clientID string
	now      func() time.Time
	validate validateFunc
}

// NewVerifier builds a Verifier for the configured client id.
func NewVerifier(cfg config.GoogleConfig) (*Verifier, error) {
	clientID := strings.TrimSpace(cfg.ClientID)
	if clientID == "" {
		return nil, errClientIDRequired
	}
	return &Verifier{
		clientID: clientID,
		now:      time.Now,
		validate: idtoken.Validate,
	}, nil
}

// Verify checks the token signature, audience, issuer, expiry, and that the
// account email is verified, then returns the token identity.
func (v *Verifier) Verify(ctx context.Context, rawToken string) (*Identity, error) {
	rawToken = strings.TrimSpace(rawToken)
	if rawToken == "" {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "google token is required")
	}

	payload, err := v.validate(ctx, rawToken, v.clientID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeUnauthorized, err, "google token validation failed")
	}
	if payload.Audience != v.clientID {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "google token audience mismatch")
	}
	if payload.Issuer != issuerHTTPS && payload.Issuer != issuerPlain {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "google token issuer mismatch")
	}
	if payload.Expires <= v.now().Unix() {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "google token expired")
	}
	if payload.Subject == "" {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "google token missing subject")
	}

	email, _ := payload.Claims["email"].(string)
	verified := claimBool(payload.Claims["email_verified"])
	if email == "" || !verified {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "google account email is unverified")
	}
	name, _ := payload.Claims["name"].(string)

	return &Identity{
		Subject:       payload.Subject,
		Email:         strings.ToLower(email),
		EmailVerified: verified,
		Name:          name,
	}, nil
}

func claimBool(v any) bool {
	switch t := v.(type) {
	case bool:
		return t
	case string:
		return t == "true"
	default:
		return false
	}
}
