package timeouts

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/Moe-and-Friends/Amazake/internal/domain/model"
	"github.com/Moe-and-Friends/Amazake/internal/domain/rules"
	"github.com/Moe-and-Friends/Amazake/internal/services/policy"
)

const DefaultFailureMessage = "Sorry, something went wrong. Please roll again!"

type Platform interface {
	SelfID() string
	Member(ctx context.Context, guildID, userID string) (model.Member, error)
	Timeout(ctx context.Context, guildID, userID string, until time.Time, reason string) error
	AddRole(ctx context.Context, guildID, userID, roleID, reason string) error
	Reply(ctx context.Context, msg model.Message, text string) error
	Typing(ctx context.Context, channelID string) error
	ReferencedAuthor(ctx context.Context, msg model.Message) (string, error)
}

type Ledger interface {
	Record(ctx context.Context, scope, subject string, expiresAt time.Time) (model.RecordResult, error)
}

type Roller interface {
	Fetch(intervals []model.Interval) (model.Action, error)
}

type Debouncer interface {
	ShouldDebounce(key string) bool
}

type Reporter interface {
	Report(ctx context.Context, event model.TimeoutEvent)
}

type Config struct {
	Channels  []string
	Patterns  []*regexp.Regexp
	Intervals []model.Interval
	Messages  model.Messages
	// TimeoutRoles are added next to the native timeout and removed by the unmute sweep.
	TimeoutRoles []string
	// ResponseDelay is the upper bound of the artificial pause before each target; zero disables it.
	ResponseDelay time.Duration
}

type Deps struct {
	Platform  Platform
	Ledger    Ledger
	Roller    Roller
	Debouncer Debouncer
	Reporter  Reporter
	Policy    *policy.Service
}

type Service struct {
	cfg      Config
	channels map[string]struct{}
	deps     Deps
	now      func() time.Time
	intN     func(n int) int
	sleep    func(ctx context.Context, d time.Duration) error
	logger   *zap.Logger
}

func NewService(cfg Config, deps Deps, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	if strings.TrimSpace(cfg.Messages.Failure) == "" {
		cfg.Messages.Failure = DefaultFailureMessage
	}

	channels := make(map[string]struct{}, len(cfg.Channels))
	for _, id := range cfg.Channels {
		if id = strings.TrimSpace(id); id != "" {
			channels[id] = struct{}{}
		}
	}

	return &Service{
		cfg:      cfg,
		channels: channels,
		deps:     deps,
		now:      time.Now,
		intN:     rand.IntN,
		sleep:    sleepContext,
		logger:   logger,
	}
}

// HandleTrigger runs one inbound message through the roulette. Failures for a single
// target are logged and do not affect the other targets; the returned error is reserved
// for failures that stop the whole message.
func (s *Service) HandleTrigger(ctx context.Context, msg model.Message) error {
	logger := s.logger.With(
		zap.String("trigger_id", uuid.NewString()),
		zap.String("message_id", msg.ID),
		zap.String("guild_id", msg.GuildID),
		zap.String("channel_id", msg.ChannelID),
		zap.String("author_id", msg.Author.UserID),
	)

	if reason, ok := s.ignoreReason(msg); ok {
		triggersTotal.WithLabelValues(reason).Inc()
		logger.Debug("ignoring message", zap.String("reason", reason))
		return nil
	}

	author := s.deps.Policy.Classify(msg.Author)
	privileged := author.Moderator || author.Administrator

	if _, observed := s.channels[msg.ChannelID]; !observed && !privileged {
		triggersTotal.WithLabelValues("channel_not_observed").Inc()
		logger.Debug("ignoring message", zap.String("reason", "channel_not_observed"))
		return nil
	}
	if !s.matches(msg.Content) {
		triggersTotal.WithLabelValues("no_match").Inc()
		logger.Debug("ignoring message", zap.String("reason", "no_match"))
		return nil
	}
	if !privileged && s.deps.Debouncer.ShouldDebounce(msg.Author.UserID) {
		triggersTotal.WithLabelValues("debounced").Inc()
		logger.Info("debouncing trigger")
		return nil
	}

	triggersTotal.WithLabelValues("accepted").Inc()
	logger.Info("processing trigger", zap.String("author", msg.Author.Name()))

	targets, err := s.deps.Policy.ResolveTargets(ctx, msg, privileged, s.deps.Platform.SelfID(), s.deps.Platform)
	if err != nil {
		return fmt.Errorf("resolve targets: %w", err)
	}

	for _, targetID := range targets {
		if err := ctx.Err(); err != nil {
			return err
		}
		s.typing(ctx, msg.ChannelID, logger)
		if err := s.pause(ctx, logger); err != nil {
			return err
		}
		s.handleTarget(ctx, msg, targetID, logger.With(zap.String("target_id", targetID)))
	}

	return nil
}

func (s *Service) handleTarget(ctx context.Context, msg model.Message, targetID string, logger *zap.Logger) {
	target, err := s.member(ctx, msg, targetID)
	if err != nil {
		s.logPlatformError(logger, "load target member", err)
		return
	}

	action, err := s.deps.Roller.Fetch(s.cfg.Intervals)
	if err != nil {
		logger.Error("roll timeout", zap.Error(err))
		return
	}

	switch action := action.(type) {
	case model.Timeout:
		s.applyTimeout(ctx, msg, target, action, logger)
	default:
		logger.Error("unsupported action type", zap.String("severity", "critical"), zap.String("type", fmt.Sprintf("%T", action)))
	}
}

func (s *Service) applyTimeout(ctx context.Context, msg model.Message, target model.Member, timeout model.Timeout, logger *zap.Logger) {
	isSelf := target.UserID == msg.Author.UserID
	label := timeout.Label()
	logger = logger.With(zap.Int("minutes", timeout.Minutes), zap.Bool("self", isSelf))
	logger.Info("rolled timeout", zap.String("duration", label))

	if s.deps.Policy.Classify(target).Protected {
		protectedTotal.Inc()
		templates := s.cfg.Messages.ProtectedOther
		if isSelf {
			templates = s.cfg.Messages.ProtectedSelf
		}
		s.reply(ctx, msg, s.render(templates, target.Name(), label), logger)
		logger.Info("target is protected")
		return
	}

	if timeout.Minutes > rules.MaxNativeTimeoutMinutes {
		unsupportedTotal.Inc()
		logger.Warn("rolled duration exceeds native timeout ceiling", zap.String("duration", label))
		s.reply(ctx, msg, s.cfg.Messages.Failure, logger)
		return
	}

	now := s.now()
	expiresAt := now.Add(timeout.Duration())
	reason := fmt.Sprintf("Timed out for %s via Roulette", label)

	if err := s.deps.Platform.Timeout(ctx, msg.GuildID, target.UserID, expiresAt, reason); err != nil {
		platformFailuresTotal.WithLabelValues("timeout").Inc()
		logger.Error("apply timeout failed", zap.String("severity", "critical"), zap.Error(err))
		return
	}
	for _, roleID := range s.cfg.TimeoutRoles {
		if err := s.deps.Platform.AddRole(ctx, msg.GuildID, target.UserID, roleID, reason); err != nil {
			platformFailuresTotal.WithLabelValues("add_role").Inc()
			logger.Error("add timeout role failed", zap.String("severity", "critical"), zap.String("role_id", roleID), zap.Error(err))
		}
	}
	timeoutsAppliedTotal.Inc()
	logger.Info("timeout applied", zap.Time("expires_at", expiresAt))

	result, err := s.deps.Ledger.Record(ctx, msg.GuildID, target.UserID, expiresAt)
	switch {
	case errors.Is(err, model.ErrLedgerAnomaly):
		ledgerAnomaliesTotal.Inc()
		logger.Warn("ledger anomaly on record", zap.Error(err))
	case err != nil:
		logger.Error("record timeout in ledger", zap.Error(err))
	default:
		logger.Debug("ledger entry recorded", zap.Stringer("result", result))
	}

	templates := s.cfg.Messages.AffectedOther
	if isSelf {
		templates = s.cfg.Messages.AffectedSelf
	}
	s.reply(ctx, msg, s.render(templates, target.Name(), label), logger)

	if s.deps.Reporter != nil {
		s.deps.Reporter.Report(ctx, model.TimeoutEvent{
			GuildID:  msg.GuildID,
			AuthorID: msg.Author.UserID,
			TargetID: target.UserID,
			Minutes:  timeout.Minutes,
		})
	}
}

func (s *Service) ignoreReason(msg model.Message) (string, bool) {
	switch {
	case msg.GuildID == "":
		return "not_in_guild", true
	case msg.Author.UserID == s.deps.Platform.SelfID():
		return "self", true
	case msg.Author.Bot:
		return "bot", true
	default:
		return "", false
	}
}

func (s *Service) matches(content string) bool {
	for _, pattern := range s.cfg.Patterns {
		if pattern.MatchString(content) {
			return true
		}
	}
	return false
}

func (s *Service) member(ctx context.Context, msg model.Message, userID string) (model.Member, error) {
	if userID == msg.Author.UserID {
		return msg.Author, nil
	}
	return s.deps.Platform.Member(ctx, msg.GuildID, userID)
}

// render picks a random template and fills in both the current and legacy tokens.
func (s *Service) render(templates []string, name, label string) string {
	if len(templates) == 0 {
		return ""
	}
	template := templates[s.intN(len(templates))]
	return strings.NewReplacer(
		"{timeout_user_name}", name,
		"{timeout_duration_label}", label,
		"{user_name}", name,
		"{duration_label}", label,
	).Replace(template)
}

func (s *Service) reply(ctx context.Context, msg model.Message, text string, logger *zap.Logger) {
	if strings.TrimSpace(text) == "" {
		return
	}
	if err := s.deps.Platform.Reply(ctx, msg, text); err != nil {
		platformFailuresTotal.WithLabelValues("reply").Inc()
		s.logPlatformError(logger, "send reply", err)
	}
}

func (s *Service) typing(ctx context.Context, channelID string, logger *zap.Logger) {
	if err := s.deps.Platform.Typing(ctx, channelID); err != nil {
		logger.Debug("typing indicator failed", zap.Error(err))
	}
}

// pause waits a uniform whole number of seconds in [1, ResponseDelay].
func (s *Service) pause(ctx context.Context, logger *zap.Logger) error {
	bound := int(s.cfg.ResponseDelay / time.Second)
	if bound <= 0 {
		return nil
	}
	delay := time.Duration(1+s.intN(bound)) * time.Second
	logger.Debug("delaying response", zap.Duration("delay", delay))
	return s.sleep(ctx, delay)
}

func (s *Service) logPlatformError(logger *zap.Logger, op string, err error) {
	switch {
	case errors.Is(err, model.ErrNotFound):
		logger.Warn(op, zap.Error(err))
	case errors.Is(err, model.ErrForbidden):
		logger.Error(op, zap.String("severity", "critical"), zap.Error(err))
	default:
		logger.Error(op, zap.Error(err))
	}
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
