// Package statuscache publishes checkpoint status to Redis for external
// observability: the id, level and size of the most recent checkpoint, so
// a monitoring sidecar can watch a whole job's checkpoint cadence without
// parsing logs. Publication is best-effort and never on a correctness
// path; configurations without a shared cache use the no-op publisher.
package statuscache

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	log "log/slog"
	"sync"
	"time"

	redis "github.com/redis/go-redis/v9"
)

// Options is the Redis connection configuration.
type Options struct {
	Address   string
	Password  string
	DB        int
	TLSConfig *tls.Config
}

// DefaultOptions targets a localhost Redis, for deployments that run a
// node-local cache next to each rank.
func DefaultOptions() Options {
	return Options{Address: "localhost:6379"}
}

// Status is the per-checkpoint record the controller publishes after each
// successful inline checkpoint.
type Status struct {
	CkptID        int       `json:"ckpt_id"`
	CkptLevel     int       `json:"ckpt_level"`
	LastCkptLevel int       `json:"last_ckpt_level"`
	CkptSize      int64     `json:"ckpt_size"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// Publisher publishes Status records keyed by rank. A Publisher without a
// client (from NewNoop), like a nil *Publisher, silently drops publishes,
// so callers can wire it unconditionally and let configuration decide
// whether Redis is present.
type Publisher struct {
	client *redis.Client
	mu     sync.Mutex
}

// NewPublisher opens a Redis client per Options. Each rank owns its own
// Publisher; there is no process-wide singleton client.
func NewPublisher(opt Options) *Publisher {
	client := redis.NewClient(&redis.Options{
		Addr:      opt.Address,
		Password:  opt.Password,
		DB:        opt.DB,
		TLSConfig: opt.TLSConfig,
	})
	return &Publisher{client: client}
}

// NewNoop returns a Publisher whose Publish calls never touch the network,
// for configurations with no statuscache endpoint configured.
func NewNoop() *Publisher {
	return &Publisher{}
}

func (p *Publisher) key(rank int) string {
	return fmt.Sprintf("mlcr:status:rank:%d", rank)
}

// Publish writes s under the rank's key with a 24-hour expiry. Failures
// are logged and swallowed: status publication is observability, never on
// a correctness path.
func (p *Publisher) Publish(ctx context.Context, rank int, s Status) {
	if p == nil || p.client == nil {
		return
	}
	s.UpdatedAt = time.Now()
	data, err := json.Marshal(s)
	if err != nil {
		log.Warn("statuscache: marshal failed", "err", err)
		return
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.client.Set(ctx, p.key(rank), data, 24*time.Hour).Err(); err != nil {
		log.Warn("statuscache: publish failed", "rank", rank, "err", err)
	}
}

// Close releases the underlying Redis connection, if any.
func (p *Publisher) Close() error {
	if p == nil || p.client == nil {
		return nil
	}
	return p.client.Close()
}
