// Package redis provides a core.ConversationStore backed by Redis. Each
// conversation is a list of JSON encoded messages under one key.
package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/hupe1980/searchagent/core"
	"github.com/hupe1980/searchagent/logging"
)

// ErrEmptyID is returned by Append when no conversation id is given.
var ErrEmptyID = errors.New("redis: empty conversation id")

// ErrConflict is returned when an append kept losing optimistic-lock races.
var ErrConflict = errors.New("redis: concurrent modification")

const maxRetries = 5

// Options configures a Store.
type Options struct {
	// KeyPrefix namespaces the conversation keys. Defaults to "searchagent:conversation:".
	KeyPrefix string
	// TTL expires idle conversations. Zero keeps them forever.
	TTL    time.Duration
	Logger logging.Logger
}

// Store implements core.ConversationStore on Redis lists.
type Store struct {
	client redis.UniversalClient
	prefix string
	ttl    time.Duration
	logger logging.Logger
}

var _ core.ConversationStore = (*Store)(nil)

// New creates a store using client.
func New(client redis.UniversalClient, optFns ...func(o *Options)) *Store {
	opts := Options{
		KeyPrefix: "searchagent:conversation:",
		Logger:    logging.NoOpLogger{},
	}
	for _, fn := range optFns {
		fn(&opts)
	}

	return &Store{
		client: client,
		prefix: opts.KeyPrefix,
		ttl:    opts.TTL,
		logger: logging.OrNoOp(opts.Logger),
	}
}

// NewClient builds a client from a redis:// URL.
func NewClient(url string) (*redis.Client, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("redis: parse url: %w", err)
	}
	return redis.NewClient(opts), nil
}

func (s *Store) key(id string) string { return s.prefix + id }

// Load returns the stored conversation or a fresh one with a new id.
func (s *Store) Load(ctx context.Context, id string) (*core.Conversation, error) {
	if id == "" {
		return core.NewConversation(""), nil
	}

	msgs, err := readMessages(ctx, s.client, s.key(id))
	if err != nil {
		return nil, err
	}
	if len(msgs) == 0 {
		return core.NewConversation(""), nil
	}

	return &core.Conversation{
		ID:       id,
		Messages: msgs,
		Created:  msgs[0].CreatedAt,
		Updated:  msgs[len(msgs)-1].CreatedAt,
	}, nil
}

// Append validates ordering against the stored list and pushes msgs in one
// MULTI/EXEC block guarded by WATCH.
func (s *Store) Append(ctx context.Context, id string, msgs ...core.Message) error {
	if id == "" {
		return ErrEmptyID
	}
	if len(msgs) == 0 {
		return nil
	}

	values := make([]any, len(msgs))
	for i, m := range msgs {
		b, err := json.Marshal(m)
		if err != nil {
			return fmt.Errorf("redis: encode message: %w", err)
		}
		values[i] = string(b)
	}

	key := s.key(id)
	txf := func(tx *redis.Tx) error {
		existing, err := readMessages(ctx, tx, key)
		if err != nil {
			return err
		}
		if err := core.CheckAppend(existing, msgs); err != nil {
			return err
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.RPush(ctx, key, values...)
			if s.ttl > 0 {
				pipe.Expire(ctx, key, s.ttl)
			}
			return nil
		})
		return err
	}

	for i := 0; i < maxRetries; i++ {
		err := s.client.Watch(ctx, txf, key)
		if errors.Is(err, redis.TxFailedErr) {
			s.logger.Debug("store.append.retry", "conversation_id", id, "attempt", i+1)
			continue
		}
		if err != nil {
			if errors.Is(err, core.ErrOrderingViolation) {
				return err
			}
			return fmt.Errorf("redis: append %s: %w", id, err)
		}
		return nil
	}
	return ErrConflict
}

type lister interface {
	LRange(ctx context.Context, key string, start, stop int64) *redis.StringSliceCmd
}

func readMessages(ctx context.Context, c lister, key string) ([]core.Message, error) {
	raw, err := c.LRange(ctx, key, 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("redis: read %s: %w", key, err)
	}

	msgs := make([]core.Message, 0, len(raw))
	for _, r := range raw {
		var m core.Message
		if err := json.Unmarshal([]byte(r), &m); err != nil {
			return nil, fmt.Errorf("redis: decode message: %w", err)
		}
		msgs = append(msgs, m)
	}
	return msgs, nil
}
