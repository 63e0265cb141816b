package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	appErrors "github.com/noah-isme/edu-portal-api/pkg/errors"
)

// TabIDRepository keeps resolved ledger tab ids in Redis so that replicas
// share one metadata lookup per tab.
type TabIDRepository struct {
	client    *redis.Client
	namespace string
}

// NewTabIDRepository builds the repository. Keys are stored as
// <namespace>ledger:tab-id:<spreadsheet>:<tab>.
func NewTabIDRepository(client *redis.Client, namespace string) *TabIDRepository {
	return &TabIDRepository{client: client, namespace: namespace}
}

func (r *TabIDRepository) key(spreadsheetID, tab string) string {
	return fmt.Sprintf("%sledger:tab-id:%s:%s", r.namespace, spreadsheetID, tab)
}

// Get returns the cached id or ErrCacheMiss.
func (r *TabIDRepository) Get(ctx context.Context, spreadsheetID, tab string) (int64, error) {
	if r.client == nil {
		return 0, appErrors.ErrCacheMiss
	}
	key := r.key(spreadsheetID, tab)
	id, err := r.client.Get(ctx, key).Int64()
	switch {
	case errors.Is(err, redis.Nil):
		return 0, appErrors.ErrCacheMiss
	case err != nil:
		return 0, fmt.Errorf("redis get %s: %w", key, err)
	}
	return id, nil
}

// Set stores id until ttl elapses.
func (r *TabIDRepository) Set(ctx context.Context, spreadsheetID, tab string, id int64, ttl time.Duration) error {
	if r.client == nil {
		return nil
	}
	key := r.key(spreadsheetID, tab)
	if err := r.client.Set(ctx, key, id, ttl).Err(); err != nil {
		return fmt.Errorf("redis set %s: %w", key, err)
	}
	return nil
}

// Delete forgets the id of one tab.
func (r *TabIDRepository) Delete(ctx context.Context, spreadsheetID, tab string) error {
	if r.client == nil {
		return nil
	}
	key := r.key(spreadsheetID, tab)
	if err := r.client.Del(ctx, key).Err(); err != nil {
		return fmt.Errorf("redis delete %s: %w", key, err)
	}
	return nil
}
