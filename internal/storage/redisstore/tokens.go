// Package redisstore хранит одноразовые токены входа в Redis.
//
// Запись живёт дольше срока токена на окно удержания, чтобы истёкший токен
// отличался от неизвестного. Погашение выполняется одним Lua-скриптом.
package redisstore

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/magabrotheeeer/botgate/internal/models"
	"github.com/magabrotheeeer/botgate/internal/storage"
)

const keyPrefix = "magic:"

// Результаты скрипта погашения.
const (
	consumeNotFound = iota
	consumeUsed
	consumeExpired
	consumeOK
)

var consumeScript = redis.NewScript(`
local v = redis.call('HMGET', KEYS[1], 'identity_id', 'expires_at', 'used')
if not v[1] then
	return {0, ''}
end
if v[3] == '1' then
	return {1, ''}
end
if tonumber(v[2]) <= tonumber(ARGV[1]) then
	return {2, ''}
end
redis.call('HSET', KEYS[1], 'used', '1')
return {3, v[1]}
`)

// TokenStore реализует хранилище токенов входа поверх Redis.
type TokenStore struct {
	client    redis.Cmdable
	retention time.Duration
}

// NewTokenStore создаёт хранилище. retention добавляется к TTL ключа.
func NewTokenStore(client redis.Cmdable, retention time.Duration) *TokenStore {
	return &TokenStore{
		client:    client,
		retention: retention,
	}
}

func key(digest string) string {
	return keyPrefix + digest
}

// SaveMagicToken сохраняет токен как hash с TTL.
func (s *TokenStore) SaveMagicToken(ctx context.Context, token models.MagicToken) error {
	const op = "redisstore.SaveMagicToken"

	ttl := token.ExpiresAt.Sub(token.IssuedAt) + s.retention
	if ttl <= 0 {
		return fmt.Errorf("%s: non-positive ttl", op)
	}
	k := key(token.Digest)
	_, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HSet(ctx, k,
			"identity_id", token.IdentityID,
			"issued_at", strconv.FormatInt(token.IssuedAt.UnixMilli(), 10),
			"expires_at", strconv.FormatInt(token.ExpiresAt.UnixMilli(), 10),
			"used", "0",
		)
		pipe.Expire(ctx, k, ttl)
		return nil
	})
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

// ConsumeMagicToken атомарно гасит токен.
func (s *TokenStore) ConsumeMagicToken(ctx context.Context, digest string, now time.Time) (string, error) {
	const op = "redisstore.ConsumeMagicToken"

	res, err := consumeScript.Run(ctx, s.client, []string{key(digest)}, now.UnixMilli()).Slice()
	if err != nil {
		return "", fmt.Errorf("%s: %w", op, err)
	}
	if len(res) != 2 {
		return "", fmt.Errorf("%s: unexpected script reply %v", op, res)
	}
	code, ok := res[0].(int64)
	if !ok {
		return "", fmt.Errorf("%s: unexpected script code %v", op, res[0])
	}

	switch code {
	case consumeOK:
		identityID, _ := res[1].(string)
		if identityID == "" {
			return "", fmt.Errorf("%s: empty identity", op)
		}
		return identityID, nil
	case consumeUsed:
		return "", fmt.Errorf("%s: %w", op, storage.ErrTokenAlreadyUsed)
	case consumeExpired:
		return "", fmt.Errorf("%s: %w", op, storage.ErrTokenExpired)
	case consumeNotFound:
		return "", fmt.Errorf("%s: %w", op, storage.ErrTokenNotFound)
	default:
		return "", fmt.Errorf("%s: %w", op, errors.New("unknown script code"))
	}
}
