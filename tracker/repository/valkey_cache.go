package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/AzielCF/az-track/infrastructure/valkey"
	"github.com/AzielCF/az-track/tracker/domain"
)

// ValkeyPresenceCache implements domain.PresenceCache on Valkey. TTLs are
// enforced server-side via SET EX; memory pressure is Valkey's eviction
// policy, which is exactly the advisory behavior the cache contract allows.
type ValkeyPresenceCache struct {
	client *valkey.Client
	prefix string
}

func NewValkeyPresenceCache(client *valkey.Client) *ValkeyPresenceCache {
	return &ValkeyPresenceCache{
		client: client,
		prefix: client.Key("presence") + ":",
	}
}

func (c *ValkeyPresenceCache) fullKey(id domain.AccountID) string {
	return c.prefix + strconv.FormatInt(int64(id), 10)
}

func (c *ValkeyPresenceCache) Get(ctx context.Context, id domain.AccountID) (*domain.PresenceSnapshot, error) {
	cmd := c.client.Inner().B().Get().Key(c.fullKey(id)).Build()
	data, err := c.client.Inner().Do(ctx, cmd).AsBytes()
	if err != nil {
		if valkey.IsNil(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get presence from valkey: %w", err)
	}

	var snap domain.PresenceSnapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return nil, fmt.Errorf("failed to unmarshal presence: %w", err)
	}
	return &snap, nil
}

func (c *ValkeyPresenceCache) Set(ctx context.Context, snapshot domain.PresenceSnapshot, ttl time.Duration) error {
	data, err := json.Marshal(snapshot)
	if err != nil {
		return fmt.Errorf("failed to marshal presence: %w", err)
	}

	cmd := c.client.Inner().B().Set().
		Key(c.fullKey(snapshot.AccountID)).
		Value(string(data)).
		Ex(ttl).
		Build()

	if err := c.client.Inner().Do(ctx, cmd).Error(); err != nil {
		return fmt.Errorf("failed to save presence to valkey: %w", err)
	}
	return nil
}

func (c *ValkeyPresenceCache) Delete(ctx context.Context, id domain.AccountID) error {
	cmd := c.client.Inner().B().Del().Key(c.fullKey(id)).Build()
	return c.client.Inner().Do(ctx, cmd).Error()
}
