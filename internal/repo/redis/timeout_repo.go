package redis

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/Moe-and-Friends/Amazake/internal/domain/model"
)

// DefaultTimeoutKeyPrefix is shared with earlier deployments so live entries survive an upgrade.
const DefaultTimeoutKeyPrefix = "roulette_timeout_live_"

// TimeoutRepo keeps one sorted set per guild; members are user ids scored by the unix
// second their timeout expires.
type TimeoutRepo struct {
	client *goredis.Client
	prefix string
}

func NewTimeoutRepo(client *goredis.Client, prefix string) *TimeoutRepo {
	if prefix == "" {
		prefix = DefaultTimeoutKeyPrefix
	}
	return &TimeoutRepo{client: client, prefix: prefix}
}

func (r *TimeoutRepo) Record(ctx context.Context, scope, subject string, expiresAt time.Time) (model.RecordResult, error) {
	if r.client == nil {
		return model.RecordNoChange, fmt.Errorf("redis client is nil")
	}
	if scope == "" || subject == "" {
		return model.RecordNoChange, fmt.Errorf("scope and subject are required")
	}

	key := r.key(scope)
	score := float64(expiresAt.Unix())

	pipe := r.client.TxPipeline()
	previous := pipe.ZScore(ctx, key, subject)
	changed := pipe.ZAddArgs(ctx, key, goredis.ZAddArgs{
		Ch:      true,
		Members: []goredis.Z{{Score: score, Member: subject}},
	})
	if _, err := pipe.Exec(ctx); err != nil && !errors.Is(err, goredis.Nil) {
		return model.RecordNoChange, fmt.Errorf("record timeout: %w", err)
	}

	count, err := changed.Result()
	if err != nil {
		return model.RecordNoChange, fmt.Errorf("record timeout: %w", err)
	}

	prevScore, prevErr := previous.Result()
	existed := prevErr == nil
	if prevErr != nil && !errors.Is(prevErr, goredis.Nil) {
		return model.RecordNoChange, fmt.Errorf("read previous expiry: %w", prevErr)
	}

	switch {
	case count == 0 && existed && prevScore == score:
		return model.RecordNoChange, nil
	case count == 0:
		return model.RecordNoChange, fmt.Errorf("%w: zadd changed no elements for %s in %s", model.ErrLedgerAnomaly, subject, key)
	case existed:
		return model.RecordUpdated, nil
	default:
		return model.RecordCreated, nil
	}
}

// DueBefore lists entries expiring at or before cutoff, earliest first.
func (r *TimeoutRepo) DueBefore(ctx context.Context, scope string, cutoff time.Time) ([]model.LedgerEntry, error) {
	if r.client == nil {
		return nil, fmt.Errorf("redis client is nil")
	}
	if scope == "" {
		return nil, fmt.Errorf("scope is required")
	}

	values, err := r.client.ZRangeByScoreWithScores(ctx, r.key(scope), &goredis.ZRangeBy{
		Min: "-inf",
		Max: strconv.FormatInt(cutoff.Unix(), 10),
	}).Result()
	if err != nil {
		return nil, fmt.Errorf("range due timeouts: %w", err)
	}

	entries := make([]model.LedgerEntry, 0, len(values))
	for _, z := range values {
		subject, ok := z.Member.(string)
		if !ok || subject == "" {
			continue
		}
		entries = append(entries, model.LedgerEntry{
			Scope:     scope,
			Subject:   subject,
			ExpiresAt: time.Unix(int64(z.Score), 0).UTC(),
		})
	}

	return entries, nil
}

func (r *TimeoutRepo) Remove(ctx context.Context, scope, subject string) (model.RemoveResult, error) {
	if r.client == nil {
		return model.RemoveNotFound, fmt.Errorf("redis client is nil")
	}
	if scope == "" || subject == "" {
		return model.RemoveNotFound, fmt.Errorf("scope and subject are required")
	}

	removed, err := r.client.ZRem(ctx, r.key(scope), subject).Result()
	if err != nil {
		return model.RemoveNotFound, fmt.Errorf("remove timeout: %w", err)
	}

	switch removed {
	case 0:
		return model.RemoveNotFound, nil
	case 1:
		return model.RemoveRemoved, nil
	default:
		return model.RemoveRemoved, fmt.Errorf("%w: zrem removed %d elements for %s", model.ErrLedgerAnomaly, removed, subject)
	}
}

// Expiry returns the recorded expiry of subject, if any.
func (r *TimeoutRepo) Expiry(ctx context.Context, scope, subject string) (time.Time, bool, error) {
	if r.client == nil {
		return time.Time{}, false, fmt.Errorf("redis client is nil")
	}

	score, err := r.client.ZScore(ctx, r.key(scope), subject).Result()
	if errors.Is(err, goredis.Nil) {
		return time.Time{}, false, nil
	}
	if err != nil {
		return time.Time{}, false, fmt.Errorf("read timeout expiry: %w", err)
	}

	return time.Unix(int64(score), 0).UTC(), true, nil
}

// Scopes lists every guild that currently has a ledger set.
func (r *TimeoutRepo) Scopes(ctx context.Context) ([]string, error) {
	if r.client == nil {
		return nil, fmt.Errorf("redis client is nil")
	}

	seen := make(map[string]struct{})
	iter := r.client.Scan(ctx, 0, r.prefix+"*", 100).Iterator()
	for iter.Next(ctx) {
		scope := strings.TrimPrefix(iter.Val(), r.prefix)
		if scope == "" {
			continue
		}
		seen[scope] = struct{}{}
	}
	if err := iter.Err(); err != nil {
		return nil, fmt.Errorf("scan timeout scopes: %w", err)
	}

	scopes := make([]string, 0, len(seen))
	for scope := range seen {
		scopes = append(scopes, scope)
	}
	sort.Strings(scopes)

	return scopes, nil
}

func (r *TimeoutRepo) key(scope string) string {
	return r.prefix + scope
}
