package store

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/huntforge/anchorhunt/pkg/worldmap"
)

// RedisStore implements the Store interface on Redis. Records are JSON
// documents; live child events ride pub/sub, with the writer publishing the
// full record after every successful write so subscribers always receive a
// complete child, never a diff.
type RedisStore struct {
	client *redis.Client
	logger *slog.Logger
}

// Ensure RedisStore implements Store interface
var _ Store = (*RedisStore)(nil)

// NewRedisStore creates a new Redis store instance
func NewRedisStore(redisURL string, logger *slog.Logger) (*RedisStore, error) {
	opt, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse redis URL: %w", err)
	}

	return &RedisStore{
		client: redis.NewClient(opt),
		logger: logger,
	}, nil
}

func (r *RedisStore) Ping(ctx context.Context) error {
	if err := r.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("redis ping failed: %w", err)
	}
	return nil
}

// WaitReady blocks until Redis answers a ping or the context expires.
// Callers bound the wait with their own deadline (~10s at startup).
func (r *RedisStore) WaitReady(ctx context.Context) error {
	retryDelay := 500 * time.Millisecond

	for attempt := 1; ; attempt++ {
		if err := r.Ping(ctx); err == nil {
			r.logger.Info("Redis connection established")
			return nil
		} else {
			r.logger.Debug("Redis not ready yet", "error", err, "attempt", attempt)
		}

		select {
		case <-ctx.Done():
			return fmt.Errorf("store did not become ready: %w", ctx.Err())
		case <-time.After(retryDelay):
		}
	}
}

func (r *RedisStore) Close() error {
	if err := r.client.Close(); err != nil {
		r.logger.Error("Failed to close Redis connection", "error", err)
		return err
	}
	r.logger.Info("Redis connection closed")
	return nil
}

// Key layout

func anchorKey(mapID int, anchorID string) string {
	return fmt.Sprintf("anchors:%d:%s", mapID, anchorID)
}

func anchorIndexKey(mapID int) string {
	return fmt.Sprintf("anchors:%d", mapID)
}

func anchorEventsChannel(mapID int) string {
	return fmt.Sprintf("anchors:events:%d", mapID)
}

func solvedKey(userID string, mapID int) string {
	return fmt.Sprintf("users:%s:progress:%d:solved", userID, mapID)
}

func userKey(userID string) string {
	return "users:" + userID
}

func mapKey(key string) string {
	return "maps:" + key
}

const mapIndexKey = "maps"

// Anchor operations

func (r *RedisStore) ListAnchors(ctx context.Context, mapID int) (map[string]map[string]any, error) {
	ids, err := r.client.SMembers(ctx, anchorIndexKey(mapID)).Result()
	if err != nil && err != redis.Nil {
		return nil, fmt.Errorf("failed to list anchors for map %d: %w", mapID, err)
	}

	out := make(map[string]map[string]any, len(ids))
	for _, id := range ids {
		rec, err := r.GetAnchor(ctx, mapID, id)
		if err != nil {
			return nil, err
		}
		if rec == nil {
			// Stale index entry; skip rather than fail the bulk load.
			r.logger.Warn("Anchor in index but record missing", "map_id", mapID, "anchor_id", id)
			continue
		}
		out[id] = rec
	}
	return out, nil
}

func (r *RedisStore) GetAnchor(ctx context.Context, mapID int, anchorID string) (map[string]any, error) {
	data, err := r.client.Get(ctx, anchorKey(mapID, anchorID)).Result()
	if err != nil {
		if err == redis.Nil {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get anchor %s: %w", anchorID, err)
	}

	var rec map[string]any
	if err := json.Unmarshal([]byte(data), &rec); err != nil {
		return nil, fmt.Errorf("failed to unmarshal anchor %s: %w", anchorID, err)
	}
	return rec, nil
}

func (r *RedisStore) SetAnchor(ctx context.Context, mapID int, anchorID string, rec map[string]any) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("failed to marshal anchor %s: %w", anchorID, err)
	}

	// SAdd result tells us whether this child is new, which decides the
	// event kind.
	added, err := r.client.SAdd(ctx, anchorIndexKey(mapID), anchorID).Result()
	if err != nil {
		return fmt.Errorf("failed to index anchor %s: %w", anchorID, err)
	}
	if err := r.client.Set(ctx, anchorKey(mapID, anchorID), data, 0).Err(); err != nil {
		return fmt.Errorf("failed to set anchor %s: %w", anchorID, err)
	}

	kind := EventChildChanged
	if added > 0 {
		kind = EventChildAdded
	}
	r.publish(ctx, mapID, anchorID, kind, rec)
	return nil
}

func (r *RedisStore) UpdateAnchor(ctx context.Context, mapID int, anchorID string, updates map[string]any) error {
	rec, err := r.GetAnchor(ctx, mapID, anchorID)
	if err != nil {
		return err
	}
	if rec == nil {
		rec = map[string]any{"id": anchorID}
	}

	for path, value := range updates {
		applyPath(rec, path, value)
	}

	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("failed to marshal anchor %s: %w", anchorID, err)
	}
	if err := r.client.SAdd(ctx, anchorIndexKey(mapID), anchorID).Err(); err != nil {
		return fmt.Errorf("failed to index anchor %s: %w", anchorID, err)
	}
	if err := r.client.Set(ctx, anchorKey(mapID, anchorID), data, 0).Err(); err != nil {
		return fmt.Errorf("failed to update anchor %s: %w", anchorID, err)
	}

	r.publish(ctx, mapID, anchorID, EventChildChanged, rec)
	return nil
}

// applyPath sets or removes one slash-separated field path on a decoded
// record, creating intermediate maps as needed.
func applyPath(rec map[string]any, path string, value any) {
	parts := strings.Split(path, "/")
	node := rec
	for _, part := range parts[:len(parts)-1] {
		child, ok := node[part].(map[string]any)
		if !ok {
			child = make(map[string]any)
			node[part] = child
		}
		node = child
	}

	leaf := parts[len(parts)-1]
	if value == nil {
		delete(node, leaf)
		return
	}
	node[leaf] = value
}

func (r *RedisStore) RemoveAnchor(ctx context.Context, mapID int, anchorID string) error {
	if err := r.client.Del(ctx, anchorKey(mapID, anchorID)).Err(); err != nil {
		return fmt.Errorf("failed to remove anchor %s: %w", anchorID, err)
	}
	if err := r.client.SRem(ctx, anchorIndexKey(mapID), anchorID).Err(); err != nil {
		return fmt.Errorf("failed to unindex anchor %s: %w", anchorID, err)
	}
	return nil
}

func (r *RedisStore) publish(ctx context.Context, mapID int, anchorID string, kind EventKind, rec map[string]any) {
	event := AnchorEvent{
		Kind:     kind,
		MapID:    mapID,
		AnchorID: anchorID,
		Record:   rec,
	}

	data, err := json.Marshal(event)
	if err != nil {
		r.logger.Error("Failed to marshal anchor event", "error", err, "anchor_id", anchorID)
		return
	}
	if err := r.client.Publish(ctx, anchorEventsChannel(mapID), data).Err(); err != nil {
		// Subscribers miss this event but converge on the next full load.
		r.logger.Error("Failed to publish anchor event", "error", err, "anchor_id", anchorID)
	}
}

func (r *RedisStore) Subscribe(ctx context.Context, mapID int) (<-chan AnchorEvent, func(), error) {
	pubsub := r.client.Subscribe(ctx, anchorEventsChannel(mapID))

	// Force the subscription onto the wire before returning, so events
	// published right after Subscribe are not lost.
	if _, err := pubsub.Receive(ctx); err != nil {
		_ = pubsub.Close()
		return nil, nil, fmt.Errorf("failed to subscribe to anchor events for map %d: %w", mapID, err)
	}

	out := make(chan AnchorEvent, 16)
	go func() {
		defer close(out)
		for msg := range pubsub.Channel() {
			var event AnchorEvent
			if err := json.Unmarshal([]byte(msg.Payload), &event); err != nil {
				r.logger.Warn("Dropping malformed anchor event", "error", err)
				continue
			}
			out <- event
		}
	}()

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			if err := pubsub.Close(); err != nil {
				r.logger.Warn("Failed to close anchor subscription", "error", err)
			}
		})
	}
	return out, cancel, nil
}

// Progress operations

func (r *RedisStore) SolvedAnchors(ctx context.Context, userID string, mapID int) ([]string, error) {
	ids, err := r.client.SMembers(ctx, solvedKey(userID, mapID)).Result()
	if err != nil && err != redis.Nil {
		return nil, fmt.Errorf("failed to load solved set: %w", err)
	}
	return ids, nil
}

func (r *RedisStore) MarkSolved(ctx context.Context, userID string, mapID int, anchorID string) error {
	if err := r.client.SAdd(ctx, solvedKey(userID, mapID), anchorID).Err(); err != nil {
		return fmt.Errorf("failed to mark anchor %s solved: %w", anchorID, err)
	}
	return nil
}

// Map and user operations

func (r *RedisStore) ListMaps(ctx context.Context) ([]worldmap.Info, error) {
	keys, err := r.client.SMembers(ctx, mapIndexKey).Result()
	if err != nil && err != redis.Nil {
		return nil, fmt.Errorf("failed to list maps: %w", err)
	}

	maps := make([]worldmap.Info, 0, len(keys))
	for _, key := range keys {
		data, err := r.client.Get(ctx, mapKey(key)).Result()
		if err != nil {
			if err == redis.Nil {
				continue
			}
			return nil, fmt.Errorf("failed to get map %s: %w", key, err)
		}

		var rec map[string]any
		if err := json.Unmarshal([]byte(data), &rec); err != nil {
			r.logger.Warn("Skipping malformed map record", "key", key, "error", err)
			continue
		}
		info, err := worldmap.ParseRecord(key, rec)
		if err != nil {
			r.logger.Warn("Skipping invalid map record", "key", key, "error", err)
			continue
		}
		maps = append(maps, info)
	}
	return maps, nil
}

// SetMap writes a map record. Used by seeding tools rather than the engine.
func (r *RedisStore) SetMap(ctx context.Context, info worldmap.Info) error {
	key := fmt.Sprintf("%d", info.MapID)
	rec := map[string]any{
		"name": info.Name,
		"lat":  info.Latitude,
		"lon":  info.Longitude,
		"alt":  info.Altitude,
	}

	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("failed to marshal map %d: %w", info.MapID, err)
	}
	if err := r.client.SAdd(ctx, mapIndexKey, key).Err(); err != nil {
		return fmt.Errorf("failed to index map %d: %w", info.MapID, err)
	}
	if err := r.client.Set(ctx, mapKey(key), data, 0).Err(); err != nil {
		return fmt.Errorf("failed to set map %d: %w", info.MapID, err)
	}
	return nil
}

// SetUserRole writes a user record with the given role. Used by seeding
// tools rather than the engine.
func (r *RedisStore) SetUserRole(ctx context.Context, userID, role string) error {
	data, err := json.Marshal(map[string]string{"role": role})
	if err != nil {
		return fmt.Errorf("failed to marshal user %s: %w", userID, err)
	}
	if err := r.client.Set(ctx, userKey(userID), data, 0).Err(); err != nil {
		return fmt.Errorf("failed to set user %s: %w", userID, err)
	}
	return nil
}

func (r *RedisStore) UserRole(ctx context.Context, userID string) (string, error) {
	if userID == "" {
		return "guest", nil
	}

	data, err := r.client.Get(ctx, userKey(userID)).Result()
	if err != nil {
		if err == redis.Nil {
			return "guest", nil
		}
		return "", fmt.Errorf("failed to get user %s: %w", userID, err)
	}

	var rec struct {
		Role string `json:"role"`
	}
	if err := json.Unmarshal([]byte(data), &rec); err != nil {
		return "", fmt.Errorf("failed to unmarshal user %s: %w", userID, err)
	}
	if rec.Role == "" {
		return "guest", nil
	}
	return rec.Role, nil
}
