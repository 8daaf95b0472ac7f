package staging

import (
	"context"
	"errors"
	"fmt"

	"github.com/JonMunkholm/profitrecon/internal/core"
	"github.com/google/uuid"
	redis "github.com/redis/go-redis/v9"
)

const keyPrefix = "profitrecon:staging:"

// stageScript atomically swaps the current-session pointer for a
// (tenant, kind) and deletes the session it replaced.
//
// KEYS[1] current pointer, KEYS[2] new session
// ARGV[1] new token, ARGV[2] payload, ARGV[3] ttl ms, ARGV[4] session key prefix
const stageScript = `
local old = redis.call("GET", KEYS[1])
redis.call("SET", KEYS[2], ARGV[2], "PX", ARGV[3])
redis.call("SET", KEYS[1], ARGV[1], "PX", ARGV[3])
if old and old ~= ARGV[1] then
  redis.call("DEL", ARGV[4] .. old)
end
return 1
`

// completeScript deletes a session and clears the pointer if it still
// names that session.
//
// KEYS[1] session, KEYS[2] current pointer; ARGV[1] token
const completeScript = `
redis.call("DEL", KEYS[1])
if redis.call("GET", KEYS[2]) == ARGV[1] then
  redis.call("DEL", KEYS[2])
end
return 1
`

// RedisStore keeps sessions in Redis so that preview and commit may land
// on different instances. Key TTLs cover the preview window plus the grace
// period; claims are SETNX keys.
type RedisStore struct {
	client   *redis.Client
	opts     Options
	stage    *redis.Script
	complete *redis.Script
}

// NewRedisStore creates a store on an existing client.
func NewRedisStore(client *redis.Client, opts Options) *RedisStore {
	return &RedisStore{
		client:   client,
		opts:     opts.withDefaults(),
		stage:    redis.NewScript(stageScript),
		complete: redis.NewScript(completeScript),
	}
}

// NewRedisClient parses a redis:// URL and verifies the connection.
func NewRedisClient(ctx context.Context, url string) (*redis.Client, error) {
	opt, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	client := redis.NewClient(opt)
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return client, nil
}

func sessionKey(token string) string { return keyPrefix + "session:" + token }
func claimKey(token string) string   { return keyPrefix + "claim:" + token }
func currentKey(tenant string, kind core.Kind) string {
	return keyPrefix + "current:" + tenant + ":" + string(kind)
}

func (r *RedisStore) Stage(ctx context.Context, tenant string, kind core.Kind, fileName string, rows []core.RowOutcome) (*Session, error) {
	if tenant == "" {
		return nil, core.ErrTenantRequired
	}
	now := r.opts.Now()
	s := &Session{
		Token:     uuid.NewString(),
		TenantID:  tenant,
		Kind:      kind,
		FileName:  fileName,
		Rows:      rows,
		CreatedAt: now,
		ExpiresAt: now.Add(r.opts.TTL),
	}

	payload, err := encodeSession(s)
	if err != nil {
		return nil, err
	}

	keep := r.opts.TTL + r.opts.Grace
	err = r.stage.Run(ctx, r.client,
		[]string{currentKey(tenant, kind), sessionKey(s.Token)},
		s.Token, payload, keep.Milliseconds(), keyPrefix+"session:",
	).Err()
	if err != nil {
		return nil, fmt.Errorf("stage session: %w", err)
	}
	return s, nil
}

func (r *RedisStore) Fetch(ctx context.Context, tenant, token string) (*Session, error) {
	data, err := r.client.Get(ctx, sessionKey(token)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, core.ErrSessionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("fetch session: %w", err)
	}

	s, err := decodeSession(data)
	if err != nil {
		return nil, err
	}
	if s.TenantID != tenant {
		return nil, core.ErrSessionNotFound
	}
	if s.Expired(r.opts.Now()) {
		return nil, core.ErrSessionExpired
	}
	return s, nil
}

func (r *RedisStore) Claim(ctx context.Context, tenant, token string) (*Session, error) {
	ok, err := r.client.SetNX(ctx, claimKey(token), tenant, claimTTL).Result()
	if err != nil {
		return nil, fmt.Errorf("claim session: %w", err)
	}
	if !ok {
		return nil, core.ErrSessionNotFound
	}

	s, err := r.Fetch(ctx, tenant, token)
	if err != nil {
		r.client.Del(ctx, claimKey(token))
		return nil, err
	}
	return s, nil
}

func (r *RedisStore) Release(ctx context.Context, token string) error {
	return r.client.Del(ctx, claimKey(token)).Err()
}

// Complete deletes the session. The claim key is left to expire so a late
// duplicate commit still fails fast.
func (r *RedisStore) Complete(ctx context.Context, token string) error {
	data, err := r.client.Get(ctx, sessionKey(token)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("complete session: %w", err)
	}
	s, err := decodeSession(data)
	if err != nil {
		return err
	}
	return r.complete.Run(ctx, r.client,
		[]string{sessionKey(token), currentKey(s.TenantID, s.Kind)}, token,
	).Err()
}

func (r *RedisStore) Discard(ctx context.Context, tenant, token string) error {
	if _, err := r.Fetch(ctx, tenant, token); err != nil && !errors.Is(err, core.ErrSessionExpired) {
		return err
	}
	return r.Complete(ctx, token)
}

// Ping reports whether Redis is reachable.
func (r *RedisStore) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}

var (
	_ Store = (*RedisStore)(nil)
	_ Store = (*MemoryStore)(nil)
)
