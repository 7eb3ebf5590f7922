package unmute

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/Moe-and-Friends/Amazake/internal/domain/model"
	"github.com/Moe-and-Friends/Amazake/internal/services/debounce"
)

const (
	DefaultLookahead = time.Minute
	removeReason     = "Timeout expired"
)

type Ledger interface {
	Scopes(ctx context.Context) ([]string, error)
	DueBefore(ctx context.Context, scope string, cutoff time.Time) ([]model.LedgerEntry, error)
	Remove(ctx context.Context, scope, subject string) (model.RemoveResult, error)
}

type Platform interface {
	Guild(ctx context.Context, guildID string) (model.Guild, error)
	Member(ctx context.Context, guildID, userID string) (model.Member, error)
	Role(ctx context.Context, guildID, roleID string) (model.Role, error)
	RemoveRole(ctx context.Context, guildID, userID, roleID, reason string) error
}

type Guard interface {
	ShouldDebounce(key string) bool
}

type Config struct {
	TimeoutRoles []string
	// Lookahead widens the due window so entries are not missed by a few seconds of skew.
	Lookahead time.Duration
	// DropDeparted removes entries for members who left the guild; otherwise they stay for audit.
	DropDeparted bool
}

type Summary struct {
	Skipped  bool
	Scopes   int
	Due      int
	Reversed int
	Departed int
	Failed   int
}

type Job struct {
	ledger   Ledger
	platform Platform
	guard    Guard
	cfg      Config
	now      func() time.Time
	logger   *zap.Logger
}

func NewJob(ledger Ledger, platform Platform, guard Guard, cfg Config, logger *zap.Logger) *Job {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.Lookahead <= 0 {
		cfg.Lookahead = DefaultLookahead
	}

	return &Job{
		ledger:   ledger,
		platform: platform,
		guard:    guard,
		cfg:      cfg,
		now:      time.Now,
		logger:   logger,
	}
}

// Run performs one sweep over every guild in the ledger. Failures for one candidate never
// stop the rest of the batch; only a failure to list guilds is returned.
func (j *Job) Run(ctx context.Context) (Summary, error) {
	var summary Summary

	if j.guard != nil && j.guard.ShouldDebounce(debounce.SweepKey) {
		sweepsSkippedTotal.Inc()
		j.logger.Info("unmute sweep skipped: previous sweep too recent")
		summary.Skipped = true
		return summary, nil
	}
	sweepsTotal.Inc()

	scopes, err := j.ledger.Scopes(ctx)
	if err != nil {
		return summary, fmt.Errorf("list ledger scopes: %w", err)
	}

	cutoff := j.now().Add(j.cfg.Lookahead)
	for _, scope := range scopes {
		if err := ctx.Err(); err != nil {
			return summary, err
		}
		summary.Scopes++
		j.sweepScope(ctx, scope, cutoff, &summary)
	}

	if summary.Due > 0 {
		j.logger.Info("unmute sweep completed",
			zap.Int("scopes", summary.Scopes),
			zap.Int("due", summary.Due),
			zap.Int("reversed", summary.Reversed),
			zap.Int("departed", summary.Departed),
			zap.Int("failed", summary.Failed),
		)
	} else {
		j.logger.Debug("unmute sweep found nothing due", zap.Int("scopes", summary.Scopes))
	}

	return summary, nil
}

func (j *Job) sweepScope(ctx context.Context, scope string, cutoff time.Time, summary *Summary) {
	logger := j.logger.With(zap.String("guild_id", scope))

	entries, err := j.ledger.DueBefore(ctx, scope, cutoff)
	if err != nil {
		logger.Error("load due timeouts", zap.Error(err))
		return
	}
	if len(entries) == 0 {
		return
	}

	if _, err := j.platform.Guild(ctx, scope); err != nil {
		j.logPlatformError(logger, "load guild", err)
		return
	}

	roles := j.resolveRoles(ctx, scope, logger)

	for _, entry := range entries {
		summary.Due++
		j.reverse(ctx, entry, roles, summary, logger.With(zap.String("user_id", entry.Subject)))
	}
}

func (j *Job) resolveRoles(ctx context.Context, scope string, logger *zap.Logger) []string {
	roles := make([]string, 0, len(j.cfg.TimeoutRoles))
	for _, roleID := range j.cfg.TimeoutRoles {
		if _, err := j.platform.Role(ctx, scope, roleID); err != nil {
			j.logPlatformError(logger.With(zap.String("role_id", roleID)), "load timeout role", err)
			continue
		}
		roles = append(roles, roleID)
	}
	return roles
}

func (j *Job) reverse(ctx context.Context, entry model.LedgerEntry, roles []string, summary *Summary, logger *zap.Logger) {
	member, err := j.platform.Member(ctx, entry.Scope, entry.Subject)
	switch {
	case errors.Is(err, model.ErrNotFound):
		summary.Departed++
		logger.Warn("member no longer in guild", zap.Bool("drop_entry", j.cfg.DropDeparted))
		if j.cfg.DropDeparted {
			j.removeEntry(ctx, entry, logger)
		}
		return
	case err != nil:
		summary.Failed++
		j.logPlatformError(logger, "load member", err)
		return
	}

	for _, roleID := range roles {
		if !member.HasRole(roleID) {
			continue
		}
		if err := j.platform.RemoveRole(ctx, entry.Scope, entry.Subject, roleID, removeReason); err != nil {
			summary.Failed++
			platformFailuresTotal.Inc()
			j.logPlatformError(logger.With(zap.String("role_id", roleID)), "remove timeout role", err)
			return
		}
		logger.Info("removed timeout role", zap.String("role_id", roleID))
	}

	j.removeEntry(ctx, entry, logger)
	summary.Reversed++
	timeoutsReversedTotal.Inc()
}

func (j *Job) removeEntry(ctx context.Context, entry model.LedgerEntry, logger *zap.Logger) {
	result, err := j.ledger.Remove(ctx, entry.Scope, entry.Subject)
	switch {
	case errors.Is(err, model.ErrLedgerAnomaly):
		ledgerAnomaliesTotal.Inc()
		logger.Warn("ledger anomaly on remove", zap.Error(err))
	case err != nil:
		logger.Error("remove ledger entry", zap.Error(err))
	case result == model.RemoveNotFound:
		ledgerAnomaliesTotal.Inc()
		logger.Warn("ledger anomaly on remove: entry vanished before removal")
	}
}

func (j *Job) logPlatformError(logger *zap.Logger, op string, err error) {
	switch {
	case errors.Is(err, model.ErrNotFound):
		logger.Warn(op, zap.Error(err))
	case errors.Is(err, model.ErrForbidden):
		logger.Error(op, zap.String("severity", "critical"), zap.Error(err))
	default:
		logger.Error(op, zap.Error(err))
	}
}
