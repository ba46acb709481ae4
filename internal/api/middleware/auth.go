package middleware

import (
	"context"
	"crypto/subtle"
	"net/http"
	"strings"

	"github.com/cloo-solutions/ragsync/internal/api"
	"github.com/cloo-solutions/ragsync/internal/domain"
)

type contextKey string

const ClientIDKey contextKey = "client_id"

const (
	// ClientIDHeader carries the authenticated client to outer middleware,
	// which still holds the request from before auth replaced its context.
	ClientIDHeader = "X-Client-ID"
	// APIKeyHeader is accepted in place of a bearer token.
	APIKeyHeader = "X-API-Key"

	staticClientID = "api-key"
)

// AuthValidator resolves a presented key to a client id.
type AuthValidator interface {
	ValidateAPIKey(ctx context.Context, token string) (string, error)
}

// StaticKeyValidator accepts the single key configured by RAGSYNC_API_KEY.
type StaticKeyValidator struct {
	key []byte
}

func NewStaticKeyValidator(key string) *StaticKeyValidator {
	return &StaticKeyValidator{key: []byte(key)}
}

func (v *StaticKeyValidator) ValidateAPIKey(_ context.Context, token string) (string, error) {
	if len(v.key) == 0 || subtle.ConstantTimeCompare([]byte(token), v.key) != 1 {
		return "", domain.ErrUnauthorized
	}
	return staticClientID, nil
}

// APIKeyAuth rejects requests without a valid key with 401.
func APIKeyAuth(validator AuthValidator) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token, problem := presentedKey(r)
			if problem != "" {
				api.Error(w, http.StatusUnauthorized, problem)
				return
			}

			clientID, err := validator.ValidateAPIKey(r.Context(), token)
			if err != nil {
				api.HandleError(w, domain.ErrUnauthorized)
				return
			}

			r.Header.Set(ClientIDHeader, clientID)
			next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), ClientIDKey, clientID)))
		})
	}
}

// presentedKey returns the key from X-API-Key or a bearer Authorization
// header, or a message describing why none was usable.
func presentedKey(r *http.Request) (string, string) {
	if key := r.Header.Get(APIKeyHeader); key != "" {
		return key, ""
	}
	auth := r.Header.Get("Authorization")
	if auth == "" {
		return "", "missing api key"
	}
	scheme, token, ok := strings.Cut(auth, " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") || token == "" {
		return "", "invalid authorization format"
	}
	return token, ""
}

func GetClientID(ctx context.Context) string {
	clientID, _ := ctx.Value(ClientIDKey).(string)
	return clientID
}

func clientFromRequest(r *http.Request) string {
	if clientID := GetClientID(r.Context()); clientID != "" {
		return clientID
	}
	return r.Header.Get(ClientIDHeader)
}
