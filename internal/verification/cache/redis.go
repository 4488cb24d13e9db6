package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	registrymodels "credregistry/internal/registry/models"
	"credregistry/internal/sentinel"
	id "credregistry/pkg/domain"
)

const redisKeyPrefix = "verification:"

// RedisCache shares results across server instances with Redis TTL eviction.
type RedisCache struct {
	client *redis.Client
	ttl    time.Duration
}

func NewRedisCache(client *redis.Client, ttl time.Duration) *RedisCache {
	return &RedisCache{client: client, ttl: ttl}
}

type redisEntry struct {
	CredentialID   id.CredentialID `json:"credential_id"`
	CredentialHash id.Hash32       `json:"credential_hash"`
	Issuer         id.Address      `json:"issuer"`
	Owner          id.Address      `json:"owner"`
	Organization   string          `json:"organization"`
	IssuedAt       time.Time       `json:"issued_at"`
	ExpiresAt      *time.Time      `json:"expires_at,omitempty"`
	IsRevoked      bool            `json:"is_revoked"`
}

// Get loads a cached result. Validity and expiry are not stored; callers
// re-evaluate them with VerificationResult.At.
func (c *RedisCache) Get(ctx context.Context, code string) (*registrymodels.VerificationResult, error) {
	data, err := c.client.Get(ctx, redisKey(code)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, sentinel.ErrNotFound
		}
		return nil, fmt.Errorf("find verification result: %w", err)
	}
	var entry redisEntry
	if err := json.Unmarshal(data, &entry); err != nil {
		return nil, fmt.Errorf("decode verification result: %w", err)
	}
	return &registrymodels.VerificationResult{
		CredentialID:   entry.CredentialID,
		CredentialHash: entry.CredentialHash,
		Issuer:         entry.Issuer,
		Owner:          entry.Owner,
		Organization:   entry.Organization,
		IssuedAt:       entry.IssuedAt,
		ExpiresAt:      entry.ExpiresAt,
		IsRevoked:      entry.IsRevoked,
	}, nil
}

// Set stores result under the cache TTL. An unrevoked result for a code marked
// revoked is dropped; the marker is watched so a concurrent MarkRevoked aborts
// the write.
func (c *RedisCache) Set(ctx context.Context, code string, result *registrymodels.VerificationResult) error {
	if result == nil {
		return nil
	}
	payload, err := json.Marshal(redisEntry{
		CredentialID:   result.CredentialID,
		CredentialHash: result.CredentialHash,
		Issuer:         result.Issuer,
		Owner:          result.Owner,
		Organization:   result.Organization,
		IssuedAt:       result.IssuedAt,
		ExpiresAt:      result.ExpiresAt,
		IsRevoked:      result.IsRevoked,
	})
	if err != nil {
		return fmt.Errorf("encode verification result: %w", err)
	}

	key, marker := redisKey(code), revokedKey(code)
	err = c.client.Watch(ctx, func(tx *redis.Tx) error {
		if !result.IsRevoked {
			n, err := tx.Exists(ctx, marker).Result()
			if err != nil {
				return fmt.Errorf("check revocation marker: %w", err)
			}
			if n > 0 {
				return nil
			}
		}
		_, err := tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, payload, c.ttl)
			return nil
		})
		return err
	}, marker)
	// The marker changed under the watch: the code was revoked mid-fill.
	if errors.Is(err, redis.TxFailedErr) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("save verification result: %w", err)
	}
	return nil
}

// MarkRevoked drops the cached result for code and writes a revocation marker
// that lives for one TTL.
func (c *RedisCache) MarkRevoked(ctx context.Context, code string) error {
	_, err := c.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, revokedKey(code), 1, c.ttl)
		pipe.Del(ctx, redisKey(code))
		return nil
	})
	if err != nil {
		return fmt.Errorf("mark verification result revoked: %w", err)
	}
	return nil
}

// Both keys share a hash tag so WATCH and MULTI stay on one cluster slot.
func redisKey(code string) string {
	return redisKeyPrefix + "{" + code + "}:result"
}

func revokedKey(code string) string {
	return redisKeyPrefix + "{" + code + "}:revoked"
}
