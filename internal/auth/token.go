package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"ledger/internal/core"

	"github.com/golang-jwt/jwt/v5"
)

// DefaultTTL is the lifetime of tokens issued without an explicit one.
const DefaultTTL = 24 * time.Hour

type ctxKey struct{}

// Claims carries the owner identity under the "id" claim.
type Claims struct {
	ID string `json:"id"`
	jwt.RegisteredClaims
}

// Verifier checks HS256 bearer tokens and issues them for local tooling.
type Verifier struct {
	secret []byte
	now    func() time.Time
}

func NewVerifier(secret string) (*Verifier, error) {
	if strings.TrimSpace(secret) == "" {
		return nil, errors.New("JWT secret is required")
	}
	return &Verifier{secret: []byte(secret), now: time.Now}, nil
}

// Verify returns the owner id carried by token. A token that does not parse
// is MalformedCredential; a bad signature, an expired token or a missing id
// is Unauthenticated.
func (v *Verifier) Verify(token string) (string, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return "", fmt.Errorf("%w: missing token", core.ErrUnauthenticated)
	}

	var claims Claims
	_, err := jwt.ParseWithClaims(token, &claims, func(*jwt.Token) (any, error) {
		return v.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(v.now),
	)
	switch {
	case errors.Is(err, jwt.ErrTokenMalformed):
		return "", fmt.Errorf("%w: %v", core.ErrMalformedCredential, err)
	case err != nil:
		return "", fmt.Errorf("%w: %v", core.ErrUnauthenticated, err)
	}
	if strings.TrimSpace(claims.ID) == "" {
		return "", fmt.Errorf("%w: token has no owner id", core.ErrUnauthenticated)
	}
	return claims.ID, nil
}

// Issue signs a token for owner. A zero ttl means DefaultTTL.
func (v *Verifier) Issue(owner string, ttl time.Duration) (string, error) {
	if strings.TrimSpace(owner) == "" {
		return "", core.Invalid(core.ErrMissingOwner)
	}
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	now := v.now()
	claims := Claims{
		ID: owner,
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(v.secret)
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return signed, nil
}

// BearerToken extracts the token from an Authorization header value.
func BearerToken(header string) (string, error) {
	header = strings.TrimSpace(header)
	if header == "" {
		return "", fmt.Errorf("%w: missing Authorization header", core.ErrUnauthenticated)
	}
	scheme, token, ok := strings.Cut(header, " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") || strings.TrimSpace(token) == "" {
		return "", fmt.Errorf("%w: expected Bearer token", core.ErrMalformedCredential)
	}
	return strings.TrimSpace(token), nil
}

// WithOwner stores the authenticated owner in ctx.
func WithOwner(ctx context.Context, owner string) context.Context {
	return context.WithValue(ctx, ctxKey{}, owner)
}

// OwnerFromContext returns the owner stored by WithOwner.
func OwnerFromContext(ctx context.Context) (string, bool) {
	owner, ok := ctx.Value(ctxKey{}).(string)
	return owner, ok && owner != ""
}
