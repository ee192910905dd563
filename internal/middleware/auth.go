package middleware

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-redis/redis/v8"
	"github.com/golang-jwt/jwt/v5"
	"github.com/paypr/backend/internal/services"
	"github.com/spf13/viper"
)

type contextKey string

const identityKey contextKey = "identity"

// BlacklistKeyPrefix namespaces logged-out bearer tokens in Redis.
const BlacklistKeyPrefix = "blacklist:"

var blacklist *redis.Client

// InitAuthMiddleware wires the Redis client used for the bearer token
// blacklist. A nil client disables the check.
func InitAuthMiddleware(client *redis.Client) {
	blacklist = client
}

// Identity is the caller resolved from a bearer token.
type Identity struct {
	UserID      int64
	IsAdmin     bool
	PublisherID *int64
	Email       string
}

// Actor converts the identity into the shape ledger operations authorize on.
func (i Identity) Actor() services.Actor {
	return services.Actor{UserID: i.UserID, IsAdmin: i.IsAdmin, PublisherID: i.PublisherID}
}

// IdentityFrom returns the identity AuthMiddleware stored on the request.
func IdentityFrom(ctx context.Context) (Identity, bool) {
	id, ok := ctx.Value(identityKey).(Identity)
	return id, ok && id.UserID > 0
}

// WithIdentity is used by handlers' tests and internal callers.
func WithIdentity(ctx context.Context, id Identity) context.Context {
	return context.WithValue(ctx, identityKey, id)
}

func AuthMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		authHeader := r.Header.Get("Authorization")
		if authHeader == "" {
			services.SendCodedError(w, http.StatusUnauthorized, services.KindUnauthorized, "Authorization header required")
			return
		}

		parts := strings.Split(authHeader, " ")
		if len(parts) != 2 || parts[0] != "Bearer" {
			services.SendCodedError(w, http.StatusUnauthorized, services.KindUnauthorized, "Invalid authorization header format")
			return
		}
		token := parts[1]

		if blacklist != nil {
			n, err := blacklist.Exists(r.Context(), BlacklistKeyPrefix+token).Result()
			if err != nil {
				log.Printf("[AUTH] blacklist lookup failed: %v", err)
				services.SendCodedError(w, http.StatusServiceUnavailable, services.KindUnauthorized, "Authentication temporarily unavailable")
				return
			}
			if n > 0 {
				services.SendCodedError(w, http.StatusUnauthorized, services.KindUnauthorized, "Token has been revoked")
				return
			}
		}

		identity, err := validateToken(token)
		if err != nil {
			services.SendCodedError(w, http.StatusUnauthorized, services.KindUnauthorized, "Invalid token")
			return
		}

		next.ServeHTTP(w, r.WithContext(WithIdentity(r.Context(), identity)))
	})
}

func validateToken(tokenString string) (Identity, error) {
	secret := viper.GetString("jwt.secret_key")
	if secret == "" {
		return Identity{}, errors.New("jwt secret not configured")
	}

	token, err := jwt.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
		return []byte(secret), nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil || !token.Valid {
		return Identity{}, fmt.Errorf("parse token: %w", err)
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return Identity{}, errors.New("unexpected claims type")
	}

	userID, err := claimInt64(claims["user_id"])
	if err != nil || userID <= 0 {
		return Identity{}, errors.New("token carries no user id")
	}

	identity := Identity{UserID: userID}
	identity.IsAdmin, _ = claims["is_admin"].(bool)
	identity.Email, _ = claims["email"].(string)
	if raw, present := claims["publisher_id"]; present && raw != nil {
		pub, err := claimInt64(raw)
		if err != nil {
			return Identity{}, errors.New("malformed publisher id")
		}
		identity.PublisherID = &pub
	}
	return identity, nil
}

// claimInt64 accepts ids encoded as JSON numbers or decimal strings.
func claimInt64(v any) (int64, error) {
	switch id := v.(type) {
	case float64:
		if id != float64(int64(id)) {
			return 0, fmt.Errorf("non-integer id %v", id)
		}
		return int64(id), nil
	case string:
		return strconv.ParseInt(id, 10, 64)
	default:
		return 0, fmt.Errorf("unsupported id type %T", v)
	}
}
