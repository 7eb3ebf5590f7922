package config

import (
	"errors"
	"fmt"
	"os"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/Moe-and-Friends/Amazake/internal/domain/model"
	"github.com/Moe-and-Friends/Amazake/internal/domain/rules"
)

type Config struct {
	Log      LogConfig      `yaml:"log"`
	HTTP     HTTPConfig     `yaml:"http"`
	Redis    RedisConfig    `yaml:"redis"`
	Discord  DiscordConfig  `yaml:"discord"`
	ACL      ACLConfig      `yaml:"acl"`
	Roulette RouletteConfig `yaml:"roulette"`
	Messages MessagesConfig `yaml:"messages"`
	Unmute   UnmuteConfig   `yaml:"unmute"`
}

type LogConfig struct {
	Level string `yaml:"level"`
}

// HTTPConfig controls the metrics and health listener. An empty Addr disables it.
type HTTPConfig struct {
	Addr         string        `yaml:"addr"`
	ReadTimeout  time.Duration `yaml:"read_timeout"`
	WriteTimeout time.Duration `yaml:"write_timeout"`
}

type RedisConfig struct {
	URL       string `yaml:"url"`
	Addr      string `yaml:"addr"`
	Username  string `yaml:"username"`
	Password  string `yaml:"password"`
	DB        int    `yaml:"db"`
	KeyPrefix string `yaml:"key_prefix"`
}

type DiscordConfig struct {
	Token string `yaml:"token"`
}

type ACLConfig struct {
	Channels      []string `yaml:"channels"`
	Protected     []string `yaml:"protected"`
	Moderator     []string `yaml:"moderator"`
	Administrator []string `yaml:"administrator"`
}

type RouletteConfig struct {
	MatchPatterns        []string         `yaml:"match_patterns"`
	Intervals            []IntervalConfig `yaml:"intervals"`
	ResponseDelaySeconds int              `yaml:"response_delay_seconds"`
	TimeoutRoles         []string         `yaml:"timeout_roles"`
	WebhookURLs          []string         `yaml:"webhook_urls"`
	WebhookTimeout       time.Duration    `yaml:"webhook_timeout"`
}

type IntervalConfig struct {
	Lower  string `yaml:"lower"`
	Upper  string `yaml:"upper"`
	Weight int    `yaml:"weight"`
}

type MessagesConfig struct {
	AffectedSelf   []string `yaml:"timeout_affected_messages_self"`
	AffectedOther  []string `yaml:"timeout_affected_messages_other"`
	ProtectedSelf  []string `yaml:"timeout_protected_messages_self"`
	ProtectedOther []string `yaml:"timeout_protected_messages_other"`
	Failure        string   `yaml:"failure"`
}

type UnmuteConfig struct {
	RateMinutes  int           `yaml:"rate_minutes"`
	Lookahead    time.Duration `yaml:"lookahead"`
	DropDeparted bool          `yaml:"drop_departed"`
}

func Default() Config {
	return Config{
		Log: LogConfig{Level: "info"},
		HTTP: HTTPConfig{
			Addr:         ":9090",
			ReadTimeout:  5 * time.Second,
			WriteTimeout: 10 * time.Second,
		},
		Redis: RedisConfig{
			Addr: "localhost:6379",
			DB:   0,
		},
		Roulette: RouletteConfig{
			WebhookTimeout: 5 * time.Second,
		},
		Messages: MessagesConfig{
			Failure: "Sorry, something went wrong. Please roll again!",
		},
		Unmute: UnmuteConfig{
			RateMinutes:  1,
			Lookahead:    time.Minute,
			DropDeparted: true,
		},
	}
}

// Load layers the YAML file and then the environment over Default and validates the result.
// A missing file is not an error.
func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		if err := loadFromYAML(path, &cfg); err != nil {
			return Config{}, err
		}
	}

	if err := applyEnvOverrides(&cfg); err != nil {
		return Config{}, err
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func (c Config) Validate() error {
	var problems []string

	if strings.TrimSpace(c.Discord.Token) == "" {
		problems = append(problems, "discord.token is required")
	}
	if len(nonEmpty(c.ACL.Channels)) == 0 {
		problems = append(problems, "acl.channels must list at least one channel")
	}
	if len(nonEmpty(c.ACL.Administrator)) == 0 {
		problems = append(problems, "acl.administrator must list at least one user")
	}
	if len(c.Roulette.MatchPatterns) == 0 {
		problems = append(problems, "roulette.match_patterns must list at least one pattern")
	} else if _, err := c.Roulette.CompilePatterns(); err != nil {
		problems = append(problems, err.Error())
	}
	if _, err := c.Roulette.TimeoutIntervals(); err != nil {
		problems = append(problems, err.Error())
	}
	if c.Roulette.ResponseDelaySeconds < 0 {
		problems = append(problems, "roulette.response_delay_seconds must not be negative")
	}
	for name, templates := range map[string][]string{
		"timeout_affected_messages_self":   c.Messages.AffectedSelf,
		"timeout_affected_messages_other":  c.Messages.AffectedOther,
		"timeout_protected_messages_self":  c.Messages.ProtectedSelf,
		"timeout_protected_messages_other": c.Messages.ProtectedOther,
	} {
		if len(nonEmpty(templates)) == 0 {
			problems = append(problems, fmt.Sprintf("messages.%s must list at least one message", name))
		}
	}
	if c.Unmute.RateMinutes < 1 {
		problems = append(problems, "unmute.rate_minutes must be at least 1")
	}

	if len(problems) > 0 {
		sort.Strings(problems)
		return fmt.Errorf("%w: %s", model.ErrInvalidConfig, strings.Join(problems, "; "))
	}
	return nil
}

func (r RouletteConfig) CompilePatterns() ([]*regexp.Regexp, error) {
	patterns := make([]*regexp.Regexp, 0, len(r.MatchPatterns))
	for _, raw := range r.MatchPatterns {
		pattern, err := regexp.Compile(raw)
		if err != nil {
			return nil, fmt.Errorf("roulette.match_patterns: compile %q: %v", raw, err)
		}
		patterns = append(patterns, pattern)
	}
	return patterns, nil
}

func (r RouletteConfig) TimeoutIntervals() ([]model.Interval, error) {
	if len(r.Intervals) == 0 {
		return nil, errors.New("roulette.intervals must list at least one interval")
	}

	intervals := make([]model.Interval, 0, len(r.Intervals))
	totalWeight := 0
	for i, raw := range r.Intervals {
		lower, err := rules.ParseBound(raw.Lower)
		if err != nil {
			return nil, fmt.Errorf("roulette.intervals[%d].lower: %v", i, err)
		}
		upper, err := rules.ParseBound(raw.Upper)
		if err != nil {
			return nil, fmt.Errorf("roulette.intervals[%d].upper: %v", i, err)
		}
		if lower > upper {
			return nil, fmt.Errorf("roulette.intervals[%d]: lower %q exceeds upper %q", i, raw.Lower, raw.Upper)
		}
		if raw.Weight <= 0 {
			return nil, fmt.Errorf("roulette.intervals[%d].weight must be positive", i)
		}
		if raw.Weight > rules.MaxTotalWeight-totalWeight {
			return nil, fmt.Errorf("roulette.intervals[%d].weight: weights sum past %d", i, rules.MaxTotalWeight)
		}
		totalWeight += raw.Weight
		intervals = append(intervals, model.Interval{LowerMinutes: lower, UpperMinutes: upper, Weight: raw.Weight})
	}
	return intervals, nil
}

func (r RouletteConfig) ResponseDelay() time.Duration {
	return time.Duration(r.ResponseDelaySeconds) * time.Second
}

func (m MessagesConfig) Model() model.Messages {
	return model.Messages{
		AffectedSelf:   nonEmpty(m.AffectedSelf),
		AffectedOther:  nonEmpty(m.AffectedOther),
		ProtectedSelf:  nonEmpty(m.ProtectedSelf),
		ProtectedOther: nonEmpty(m.ProtectedOther),
		Failure:        m.Failure,
	}
}

func (u UnmuteConfig) Rate() time.Duration {
	return time.Duration(u.RateMinutes) * time.Minute
}

func loadFromYAML(path string, cfg *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("read config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("unmarshal config yaml: %w", err)
	}

	return nil
}

func applyEnvOverrides(cfg *Config) error {
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.Log.Level = v
	}
	if v := os.Getenv("HTTP_ADDR"); v != "" {
		cfg.HTTP.Addr = v
	}

	if v := os.Getenv("DISCORD_TOKEN"); v != "" {
		cfg.Discord.Token = v
	}

	if v := os.Getenv("REDIS_URL"); v != "" {
		cfg.Redis.URL = v
	}
	if v := os.Getenv("REDIS_ADDR"); v != "" {
		cfg.Redis.Addr = v
	}
	if v := os.Getenv("REDIS_USERNAME"); v != "" {
		cfg.Redis.Username = v
	}
	if v := os.Getenv("REDIS_PASSWORD"); v != "" {
		cfg.Redis.Password = v
	}
	if err := overrideInt("REDIS_DB", &cfg.Redis.DB); err != nil {
		return err
	}

	if err := overrideInt("RESPONSE_DELAY_SECONDS", &cfg.Roulette.ResponseDelaySeconds); err != nil {
		return err
	}
	if err := overrideInt("UNMUTE_RATE_MINUTES", &cfg.Unmute.RateMinutes); err != nil {
		return err
	}

	return nil
}

func overrideInt(key string, target *int) error {
	v := os.Getenv(key)
	if v == "" {
		return nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fmt.Errorf("parse %s int: %w", key, err)
	}
	*target = n
	return nil
}

func nonEmpty(values []string) []string {
	out := make([]string, 0, len(values))
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			out = append(out, v)
		}
	}
	return out
}
