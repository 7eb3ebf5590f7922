package redis

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	goredis "github.com/redis/go-redis/v9"

	"github.com/Moe-and-Friends/Amazake/internal/domain/model"
)

func TestTimeoutRepoRecordDueRemove(t *testing.T) {
	mr, client := newMiniRedisClient(t)
	defer mr.Close()
	defer func() { _ = client.Close() }()

	repo := NewTimeoutRepo(client, "")
	ctx := context.Background()
	now := time.Date(2026, time.March, 1, 12, 0, 0, 0, time.UTC)
	expiresAt := now.Add(10 * time.Minute)

	result, err := repo.Record(ctx, "guild-1", "user-1", expiresAt)
	if err != nil {
		t.Fatalf("record timeout: %v", err)
	}
	if result != model.RecordCreated {
		t.Fatalf("unexpected record result: %s", result)
	}

	due, err := repo.DueBefore(ctx, "guild-1", now)
	if err != nil {
		t.Fatalf("due before now: %v", err)
	}
	if len(due) != 0 {
		t.Fatalf("expected no due entries before expiry, got %d", len(due))
	}

	due, err = repo.DueBefore(ctx, "guild-1", expiresAt)
	if err != nil {
		t.Fatalf("due at expiry: %v", err)
	}
	if len(due) != 1 || due[0].Subject != "user-1" || due[0].Scope != "guild-1" {
		t.Fatalf("unexpected due entries at expiry: %+v", due)
	}
	if !due[0].ExpiresAt.Equal(expiresAt) {
		t.Fatalf("unexpected expiry: got %s want %s", due[0].ExpiresAt, expiresAt)
	}

	removed, err := repo.Remove(ctx, "guild-1", "user-1")
	if err != nil {
		t.Fatalf("remove timeout: %v", err)
	}
	if removed != model.RemoveRemoved {
		t.Fatalf("unexpected remove result: %s", removed)
	}

	due, err = repo.DueBefore(ctx, "guild-1", expiresAt.Add(time.Hour))
	if err != nil {
		t.Fatalf("due after remove: %v", err)
	}
	if len(due) != 0 {
		t.Fatalf("expected removed entry to stay gone, got %+v", due)
	}

	removed, err = repo.Remove(ctx, "guild-1", "user-1")
	if err != nil {
		t.Fatalf("second remove: %v", err)
	}
	if removed != model.RemoveNotFound {
		t.Fatalf("expected not_found on second remove, got %s", removed)
	}
}

func TestTimeoutRepoRecordOverwritesExistingEntry(t *testing.T) {
	mr, client := newMiniRedisClient(t)
	defer mr.Close()
	defer func() { _ = client.Close() }()

	repo := NewTimeoutRepo(client, "")
	ctx := context.Background()
	base := time.Date(2026, time.March, 1, 12, 0, 0, 0, time.UTC)

	if _, err := repo.Record(ctx, "g", "u", base.Add(time.Minute)); err != nil {
		t.Fatalf("first record: %v", err)
	}

	result, err := repo.Record(ctx, "g", "u", base.Add(time.Hour))
	if err != nil {
		t.Fatalf("second record: %v", err)
	}
	if result != model.RecordUpdated {
		t.Fatalf("expected updated, got %s", result)
	}

	result, err = repo.Record(ctx, "g", "u", base.Add(time.Hour))
	if err != nil {
		t.Fatalf("identical record: %v", err)
	}
	if result != model.RecordNoChange {
		t.Fatalf("expected no_change for identical expiry, got %s", result)
	}

	members, err := client.ZCard(ctx, DefaultTimeoutKeyPrefix+"g").Result()
	if err != nil {
		t.Fatalf("zcard: %v", err)
	}
	if members != 1 {
		t.Fatalf("expected exactly one entry per subject, got %d", members)
	}

	expiry, ok, err := repo.Expiry(ctx, "g", "u")
	if err != nil || !ok {
		t.Fatalf("read expiry: ok=%v err=%v", ok, err)
	}
	if !expiry.Equal(base.Add(time.Hour)) {
		t.Fatalf("unexpected expiry after overwrite: %s", expiry)
	}
}

func TestTimeoutRepoDueBeforeIsOrderedAndInclusive(t *testing.T) {
	mr, client := newMiniRedisClient(t)
	defer mr.Close()
	defer func() { _ = client.Close() }()

	repo := NewTimeoutRepo(client, "")
	ctx := context.Background()
	base := time.Date(2026, time.March, 1, 12, 0, 0, 0, time.UTC)

	for subject, offset := range map[string]time.Duration{
		"late":   3 * time.Minute,
		"early":  time.Minute,
		"middle": 2 * time.Minute,
		"future": time.Hour,
	} {
		if _, err := repo.Record(ctx, "g", subject, base.Add(offset)); err != nil {
			t.Fatalf("record %s: %v", subject, err)
		}
	}

	due, err := repo.DueBefore(ctx, "g", base.Add(3*time.Minute))
	if err != nil {
		t.Fatalf("due before: %v", err)
	}

	want := []string{"early", "middle", "late"}
	if len(due) != len(want) {
		t.Fatalf("unexpected due count: got %d want %d", len(due), len(want))
	}
	for i, subject := range want {
		if due[i].Subject != subject {
			t.Fatalf("unexpected order at %d: got %s want %s", i, due[i].Subject, subject)
		}
	}
}

func TestTimeoutRepoScopes(t *testing.T) {
	mr, client := newMiniRedisClient(t)
	defer mr.Close()
	defer func() { _ = client.Close() }()

	repo := NewTimeoutRepo(client, "")
	ctx := context.Background()
	expiresAt := time.Now().Add(time.Minute)

	for _, scope := range []string{"200", "100", "300"} {
		if _, err := repo.Record(ctx, scope, "u", expiresAt); err != nil {
			t.Fatalf("record %s: %v", scope, err)
		}
	}
	if err := client.Set(ctx, "unrelated_key", "1", 0).Err(); err != nil {
		t.Fatalf("seed unrelated key: %v", err)
	}

	scopes, err := repo.Scopes(ctx)
	if err != nil {
		t.Fatalf("list scopes: %v", err)
	}
	if len(scopes) != 3 || scopes[0] != "100" || scopes[1] != "200" || scopes[2] != "300" {
		t.Fatalf("unexpected scopes: %v", scopes)
	}
}

func TestTimeoutRepoValidatesInput(t *testing.T) {
	mr, client := newMiniRedisClient(t)
	defer mr.Close()
	defer func() { _ = client.Close() }()

	repo := NewTimeoutRepo(client, "")
	if _, err := repo.Record(context.Background(), "", "u", time.Now()); err == nil {
		t.Fatalf("expected error for empty scope")
	}
	if _, err := repo.Remove(context.Background(), "g", ""); err == nil {
		t.Fatalf("expected error for empty subject")
	}
}

func TestTimeoutRepoSurfacesStoreErrors(t *testing.T) {
	mr, client := newMiniRedisClient(t)
	defer func() { _ = client.Close() }()

	repo := NewTimeoutRepo(client, "")
	mr.Close()

	_, err := repo.Record(context.Background(), "g", "u", time.Now())
	if err == nil {
		t.Fatalf("expected error when redis is unavailable")
	}
	if errors.Is(err, model.ErrLedgerAnomaly) {
		t.Fatalf("connection failure should not be reported as an anomaly: %v", err)
	}
}

func newMiniRedisClient(t *testing.T) (*miniredis.Miniredis, *goredis.Client) {
	t.Helper()

	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("run miniredis: %v", err)
	}

	client := goredis.NewClient(&goredis.Options{
		Addr: mr.Addr(),
	})

	return mr, client
}
