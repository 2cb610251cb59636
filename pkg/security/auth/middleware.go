package auth

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"
)

// KeySource says where a key is read from.
type KeySource struct {
	Header string // header name
	Scheme string // optional prefix such as "Bearer"
}

// DefaultSources reads "Authorization: Bearer <key>", then X-API-Key.
var DefaultSources = []KeySource{
	{Header: "Authorization", Scheme: "Bearer"},
	{Header: "X-API-Key"},
}

type contextKey struct{}

// KeyName returns the name of the key that authenticated ctx's request.
func KeyName(ctx context.Context) string {
	info, _ := ctx.Value(contextKey{}).(*KeyInfo)
	if info == nil {
		return ""
	}
	return info.Name
}

// Middleware rejects requests without a valid key with 401.
func Middleware(validator *Validator, sources []KeySource, logger *slog.Logger) func(http.Handler) http.Handler {
	if len(sources) == 0 {
		sources = DefaultSources
	}
	if logger == nil {
		logger = slog.Default()
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key, err := extractKey(r, sources)
			var info *KeyInfo
			if err == nil {
				info, err = validator.Validate(key)
			}
			if err != nil {
				logger.WarnContext(r.Context(), "Rejected unauthenticated request",
					"error", err,
					"remote_addr", r.RemoteAddr,
					"path", r.URL.Path,
				)
				w.Header().Set("WWW-Authenticate", `Bearer realm="backlog"`)
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusUnauthorized)
				json.NewEncoder(w).Encode(map[string]string{"error": err.Error()})
				return
			}

			logger.DebugContext(r.Context(), "API key authenticated", "key_name", info.Name)
			next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), contextKey{}, info)))
		})
	}
}

func extractKey(r *http.Request, sources []KeySource) (string, error) {
	for _, source := range sources {
		value := strings.TrimSpace(r.Header.Get(source.Header))
		if value == "" {
			continue
		}
		if source.Scheme == "" {
			return value, nil
		}
		if prefix := source.Scheme + " "; len(value) > len(prefix) && strings.EqualFold(value[:len(prefix)], prefix) {
			return strings.TrimSpace(value[len(prefix):]), nil
		}
	}
	return "", ErrMissingKey
}
