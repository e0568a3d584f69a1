package auth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"slices"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const (
	ScopeResolve   = "ads:resolve"
	ScopeCardsRead = "cards:read"
)

var (
	ErrInvalidToken = errors.New("invalid token")
	ErrMissingScope = errors.New("missing scope")
)

// Claims identify the service calling the render API.
type Claims struct {
	Subject string
	Scopes  []string
}

// Has reports whether the claims grant scope.
func (c *Claims) Has(scope string) bool {
	return c != nil && slices.Contains(c.Scopes, scope)
}

type jwtClaims struct {
	Scope string `json:"scope"`
	jwt.RegisteredClaims
}

type Service struct {
	secret []byte
	now    func() time.Time
}

func NewService(secret string) *Service {
	return &Service{secret: []byte(secret), now: time.Now}
}

// Issue signs an HS256 token for subject valid for ttl. Scopes are stored
// space separated in the "scope" claim.
func (s *Service) Issue(subject string, scopes []string, ttl time.Duration) (string, error) {
	if len(s.secret) == 0 {
		return "", errors.New("auth: no signing secret configured")
	}
	now := s.now()
	claims := jwtClaims{
		Scope: strings.Join(scopes, " "),
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
}

func (s *Service) ParseToken(tokenStr string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenStr, &jwtClaims{}, func(token *jwt.Token) (interface{}, error) {
		return s.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithTimeFunc(s.now))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	c, ok := token.Claims.(*jwtClaims)
	if !ok || !token.Valid {
		return nil, ErrInvalidToken
	}
	return &Claims{Subject: c.Subject, Scopes: strings.Fields(c.Scope)}, nil
}

type ctxKey string

const claimsKey ctxKey = "claims"

func ClaimsFromContext(ctx context.Context) *Claims {
	val, ok := ctx.Value(claimsKey).(*Claims)
	if !ok {
		return nil
	}
	return val
}

func (s *Service) RequireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		authz := r.Header.Get("Authorization")
		if authz == "" {
			errorJSON(w, http.StatusUnauthorized, "missing token")
			return
		}
		parts := strings.SplitN(authz, " ", 2)
		if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") {
			errorJSON(w, http.StatusUnauthorized, "invalid auth header")
			return
		}
		claims, err := s.ParseToken(parts[1])
		if err != nil {
			errorJSON(w, http.StatusUnauthorized, ErrInvalidToken.Error())
			return
		}
		ctx := context.WithValue(r.Context(), claimsKey, claims)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (s *Service) RequireScope(scope string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return s.RequireAuth(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !ClaimsFromContext(r.Context()).Has(scope) {
				errorJSON(w, http.StatusForbidden, fmt.Sprintf("%s: %s", ErrMissingScope, scope))
				return
			}
			next.ServeHTTP(w, r)
		}))
	}
}

func errorJSON(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": msg})
}
