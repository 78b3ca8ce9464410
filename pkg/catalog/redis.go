package catalog

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// Redis keeps the catalog in a single hash, field = logical name, value =
// JSON-encoded Entry
type Redis struct {
	client *redis.Client
	key    string
}

// NewRedis creates a catalog stored under key
func NewRedis(client *redis.Client, key string) *Redis {
	return &Redis{client: client, key: key}
}

// Register implements Catalog
func (r *Redis) Register(ctx context.Context, entry Entry) error {
	if err := validate(&entry); err != nil {
		return err
	}

	data, err := json.Marshal(entry)
	if err != nil {
		return err
	}

	if err := r.client.HSet(ctx, r.key, entry.Name, data).Err(); err != nil {
		return fmt.Errorf("failed to register %s: %w", entry.Name, err)
	}

	return nil
}

// Lookup implements Catalog
func (r *Redis) Lookup(ctx context.Context, name string) (*Entry, error) {
	data, err := r.client.HGet(ctx, r.key, name).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, fmt.Errorf("%w: %s", ErrNotRegistered, name)
		}

		return nil, err
	}

	var entry Entry
	if err := json.Unmarshal([]byte(data), &entry); err != nil {
		return nil, fmt.Errorf("corrupt catalog entry %s: %w", name, err)
	}

	return &entry, nil
}

// List implements Catalog, ordered by name
func (r *Redis) List(ctx context.Context) ([]Entry, error) {
	all, err := r.client.HGetAll(ctx, r.key).Result()
	if err != nil {
		return nil, err
	}

	entries := make([]Entry, 0, len(all))

	for name, data := range all {
		var entry Entry
		if err := json.Unmarshal([]byte(data), &entry); err != nil {
			return nil, fmt.Errorf("corrupt catalog entry %s: %w", name, err)
		}

		entries = append(entries, entry)
	}

	sortEntries(entries)

	return entries, nil
}
