package middleware

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	jwt "github.com/golang-jwt/jwt/v5"

	"github.com/soaringjerry/whenwhy/internal/utils"
)

type authCtxKey int

const authKey authCtxKey = 7

const (
	// DevSecret signs tokens when no secret is configured.
	DevSecret   = "whenwhy-dev-secret"
	tokenIssuer = "whenwhy"
)

// Claims identify a researcher. Subject carries the researcher id.
type Claims struct {
	Email string `json:"email"`
	jwt.RegisteredClaims
}

// Authenticator signs and verifies researcher tokens.
type Authenticator struct {
	secret []byte
	now    func() time.Time
}

func NewAuthenticator(secret string) *Authenticator {
	if secret == "" {
		secret = DevSecret
	}
	return &Authenticator{secret: []byte(secret), now: time.Now}
}

// SignToken matches services.TokenSigner.
func (a *Authenticator) SignToken(researcherID, email string, ttl time.Duration) (string, error) {
	now := a.now()
	claims := Claims{
		Email: email,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    tokenIssuer,
			Subject:   researcherID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(a.secret)
}

func (a *Authenticator) parseToken(raw string) (*Claims, error) {
	var c Claims
	_, err := jwt.ParseWithClaims(raw, &c, func(*jwt.Token) (any, error) { return a.secret, nil },
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(tokenIssuer),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(a.now),
	)
	if err != nil {
		return nil, err
	}
	if c.Subject == "" {
		return nil, errors.New("token has no subject")
	}
	return &c, nil
}

// WithAuth attaches claims to the context when a valid bearer token is present.
// Requests without one pass through untouched.
func (a *Authenticator) WithAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		scheme, tok, ok := strings.Cut(r.Header.Get("Authorization"), " ")
		if ok && strings.EqualFold(scheme, "Bearer") {
			if c, err := a.parseToken(strings.TrimSpace(tok)); err == nil {
				r = r.WithContext(context.WithValue(r.Context(), authKey, c))
			}
		}
		next.ServeHTTP(w, r)
	})
}

// RequireAuth rejects requests that WithAuth did not authenticate.
func RequireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if _, ok := ResearcherFromContext(r.Context()); !ok {
			const key = "request.unauthorized"
			w.Header().Set("Content-Type", "application/json")
			w.Header().Set("WWW-Authenticate", `Bearer realm="whenwhy"`)
			w.WriteHeader(http.StatusUnauthorized)
			_ = json.NewEncoder(w).Encode(map[string]string{
				"error": utils.T(LocaleFromContext(r.Context()), key),
				"code":  key,
			})
			return
		}
		next.ServeHTTP(w, r)
	})
}

func ResearcherFromContext(ctx context.Context) (*Claims, bool) {
	c, ok := ctx.Value(authKey).(*Claims)
	return c, ok
}
