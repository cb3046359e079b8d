package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	redisv9 "github.com/redis/go-redis/v9"
)

var releaseScript = redisv9.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// JobLock is a per-document ingestion lock shared by every worker process.
type JobLock struct {
	client *redisv9.Client
	ttl    time.Duration
}

func NewJobLock(client *redisv9.Client, ttl time.Duration) *JobLock {
	if ttl <= 0 {
		ttl = time.Hour
	}
	return &JobLock{client: client, ttl: ttl}
}

// Acquire returns a release token when the lock was taken, or "" when another
// worker holds it.
func (l *JobLock) Acquire(ctx context.Context, documentID uint) (string, error) {
	token := uuid.NewString()
	ok, err := l.client.SetNX(ctx, l.key(documentID), token, l.ttl).Result()
	if err != nil {
		return "", fmt.Errorf("redis acquire ingest lock failed: %w", err)
	}
	if !ok {
		return "", nil
	}
	return token, nil
}

func (l *JobLock) Release(ctx context.Context, documentID uint, token string) error {
	if token == "" {
		return nil
	}
	if err := releaseScript.Run(ctx, l.client, []string{l.key(documentID)}, token).Err(); err != nil && err != redisv9.Nil {
		return fmt.Errorf("redis release ingest lock failed: %w", err)
	}
	return nil
}

func (l *JobLock) key(documentID uint) string {
	return fmt.Sprintf("docqa:ingest:lock:%d", documentID)
}
