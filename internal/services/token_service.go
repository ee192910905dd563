package services

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"log"
	"strconv"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/skip2/go-qrcode"
)

// UnlockClaims is the payload of an unlock credential.
type UnlockClaims struct {
	ArticleID   int64  `json:"article_id"`
	PublisherID *int64 `json:"publisher_id,omitempty"`
	jwt.RegisteredClaims
}

// UserID returns the purchasing user encoded in sub.
func (c *UnlockClaims) UserID() (int64, error) {
	return strconv.ParseInt(c.Subject, 10, 64)
}

type RevocationStore interface {
	IsRevoked(ctx context.Context, tokenHash string) (bool, error)
	Revoke(ctx context.Context, tokenHash string) error
}

type RevocationPruner interface {
	Prune(ctx context.Context, cutoff time.Time) (int64, error)
}

// TokenService issues and checks short-lived unlock credentials. Revocation is
// permanent for the token's remaining lifetime.
type TokenService struct {
	secret      []byte
	ttl         time.Duration
	revocations RevocationStore
	pruner      RevocationPruner
	now         func() time.Time
}

func NewTokenService(secret string, ttl time.Duration, revocations RevocationStore, pruner RevocationPruner) *TokenService {
	if ttl <= 0 {
		ttl = 10 * time.Minute
	}
	return &TokenService{
		secret:      []byte(secret),
		ttl:         ttl,
		revocations: revocations,
		pruner:      pruner,
		now:         time.Now,
	}
}

// HashToken is the form a token is stored in once revoked.
func HashToken(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}

// Issue signs an unlock credential for (user, article).
func (s *TokenService) Issue(userID, articleID int64, publisherID *int64) (string, time.Time, error) {
	now := s.now()
	expiresAt := now.Add(s.ttl)
	claims := UnlockClaims{
		ArticleID:   articleID,
		PublisherID: publisherID,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   strconv.FormatInt(userID, 10),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
			ID:        uuid.NewString(),
		},
	}

	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("sign unlock token: %w", err)
	}
	return token, expiresAt, nil
}

// Verify reports whether token unlocks expectedArticleID. It fails closed: a
// revocation lookup error, a bad signature, expiry or an article mismatch all
// yield false. Revocation is checked before the signature.
func (s *TokenService) Verify(ctx context.Context, token string, expectedArticleID int64) (*UnlockClaims, bool) {
	if token == "" {
		return nil, false
	}

	revoked, err := s.revocations.IsRevoked(ctx, HashToken(token))
	if err != nil {
		log.Printf("[TOKENS] Revocation lookup failed: %v", err)
		return nil, false
	}
	if revoked {
		return nil, false
	}

	claims := &UnlockClaims{}
	parsed, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (any, error) {
		return s.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithTimeFunc(s.now), jwt.WithExpirationRequired())
	if err != nil || !parsed.Valid {
		return nil, false
	}

	if claims.ArticleID != expectedArticleID {
		return nil, false
	}
	return claims, true
}

// Revoke is idempotent.
func (s *TokenService) Revoke(ctx context.Context, token string) error {
	if token == "" {
		return errors.New("empty token")
	}
	if err := s.revocations.Revoke(ctx, HashToken(token)); err != nil {
		return fmt.Errorf("revoke token: %w", err)
	}
	return nil
}

// PruneRevoked drops revocations older than olderThan. Passing anything
// shorter than the token TTL would let a revoked token verify again, so the
// cutoff is never later than now - ttl.
func (s *TokenService) PruneRevoked(ctx context.Context, olderThan time.Duration) (int64, error) {
	if s.pruner == nil {
		return 0, nil
	}
	if olderThan < s.ttl {
		olderThan = s.ttl
	}
	return s.pruner.Prune(ctx, s.now().Add(-olderThan))
}

// RenderQR encodes the credential as a PNG QR code.
func (s *TokenService) RenderQR(token string, size int) ([]byte, error) {
	if token == "" {
		return nil, errors.New("empty token")
	}
	if size <= 0 {
		size = 256
	}
	return qrcode.Encode(token, qrcode.Medium, size)
}
