package middleware

import (
	"context"
	"log/slog"
	"net/http"
	"strings"
)

// contextKey тип для ключей контекста
type contextKey string

// PeerNameKey ключ для хранения имени аутентифицированного peer в контексте
const PeerNameKey contextKey = "peer_name"

// PeerName извлекает имя peer из контекста запроса
func PeerName(ctx context.Context) (string, bool) {
	name, ok := ctx.Value(PeerNameKey).(string)
	return name, ok
}

// ValidateToken проверяет bearer token и возвращает имя peer
type ValidateToken func(token string) (string, error)

// AuthMiddleware создает middleware для проверки peer-токена.
// Ожидает заголовок "Authorization: Bearer <token>".
func AuthMiddleware(logger *slog.Logger, validate ValidateToken) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			authHeader := r.Header.Get("Authorization")
			if authHeader == "" {
				logger.Warn("Missing Authorization header")
				http.Error(w, "Unauthorized: missing token", http.StatusUnauthorized)
				return
			}

			parts := strings.SplitN(authHeader, " ", 2)
			if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
				logger.Warn("Invalid Authorization header format")
				http.Error(w, "Unauthorized: invalid token format", http.StatusUnauthorized)
				return
			}

			peerName, err := validate(parts[1])
			if err != nil {
				logger.Warn("Invalid peer token", "error", err)
				http.Error(w, "Unauthorized: invalid token", http.StatusUnauthorized)
				return
			}

			ctx := context.WithValue(r.Context(), PeerNameKey, peerName)

			logger.Debug("Peer authenticated", "peer_name", peerName)

			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
