package auth

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	jwtlib "github.com/golang-jwt/jwt/v5"
)

// ErrUnauthenticated is returned when a request carries no valid session.
var ErrUnauthenticated = errors.New("unauthenticated")

// Identity is an authenticated marketplace user.
type Identity struct {
	UserID    string
	ExpiresAt time.Time
}

// Authenticator resolves request credentials into an identity.
type Authenticator interface {
	Authenticate(ctx context.Context, r *http.Request) (Identity, error)
}

// JWTAuthenticator validates HMAC-signed session tokens issued by the
// marketplace. Tokens are read from the Authorization header, the "token"
// query parameter (browsers cannot set headers on websocket upgrades) or the
// session cookie.
type JWTAuthenticator struct {
	secret     []byte
	cookieName string
	now        func() time.Time
}

// NewJWTAuthenticator constructs a JWTAuthenticator.
func NewJWTAuthenticator(secret []byte, cookieName string) *JWTAuthenticator {
	return &JWTAuthenticator{secret: secret, cookieName: cookieName, now: time.Now}
}

// Authenticate implements Authenticator.
func (a *JWTAuthenticator) Authenticate(_ context.Context, r *http.Request) (Identity, error) {
	token := TokenFromRequest(r, a.cookieName)
	if token == "" {
		return Identity{}, ErrUnauthenticated
	}
	return a.Verify(token)
}

// Verify parses a raw token and returns its identity.
func (a *JWTAuthenticator) Verify(token string) (Identity, error) {
	parsed, err := jwtlib.Parse(token, func(t *jwtlib.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwtlib.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected alg: %v", t.Header["alg"])
		}
		return a.secret, nil
	}, jwtlib.WithTimeFunc(a.now), jwtlib.WithExpirationRequired())
	if err != nil || !parsed.Valid {
		return Identity{}, fmt.Errorf("%w: %v", ErrUnauthenticated, err)
	}

	sub, err := parsed.Claims.GetSubject()
	if err != nil || sub == "" {
		return Identity{}, fmt.Errorf("%w: missing subject", ErrUnauthenticated)
	}
	exp, err := parsed.Claims.GetExpirationTime()
	if err != nil || exp == nil {
		return Identity{}, fmt.Errorf("%w: missing expiry", ErrUnauthenticated)
	}
	return Identity{UserID: sub, ExpiresAt: exp.Time}, nil
}

// Issue signs a session token for the user. Used by tooling and tests.
func (a *JWTAuthenticator) Issue(userID string, ttl time.Duration) (string, error) {
	now := a.now()
	claims := jwtlib.RegisteredClaims{
		Subject:   userID,
		IssuedAt:  jwtlib.NewNumericDate(now),
		NotBefore: jwtlib.NewNumericDate(now),
		ExpiresAt: jwtlib.NewNumericDate(now.Add(ttl)),
	}
	return jwtlib.NewWithClaims(jwtlib.SigningMethodHS256, claims).SignedString(a.secret)
}

// TokenFromRequest extracts a session token from a request.
func TokenFromRequest(r *http.Request, cookieName string) string {
	if header := strings.TrimSpace(r.Header.Get("Authorization")); header != "" {
		parts := strings.SplitN(header, " ", 2)
		if len(parts) == 2 && strings.EqualFold(parts[0], "bearer") {
			return strings.TrimSpace(parts[1])
		}
		return ""
	}
	if token := r.URL.Query().Get("token"); token != "" {
		return token
	}
	if cookieName != "" {
		if c, err := r.Cookie(cookieName); err == nil {
			return c.Value
		}
	}
	return ""
}
