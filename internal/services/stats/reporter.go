package stats

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/Moe-and-Friends/Amazake/internal/domain/model"
	"github.com/Moe-and-Friends/Amazake/internal/infra/httpclient"
)

const DefaultTimeout = 5 * time.Second

// payload attributes the roll to the acting author, so moderators are credited for
// rolls on other users.
type payload struct {
	Discord discordPayload `json:"discord"`
	Timeout timeoutPayload `json:"timeout"`
}

type discordPayload struct {
	UserID  string `json:"user_id"`
	GuildID string `json:"guild_id"`
}

type timeoutPayload struct {
	Duration int `json:"duration"`
}

// Reporter posts applied timeouts to stats webhooks. Deliveries are never retried.
type Reporter struct {
	urls       []string
	httpClient *http.Client
	logger     *zap.Logger
	wg         sync.WaitGroup
}

func NewReporter(urls []string, timeout time.Duration, logger *zap.Logger) *Reporter {
	if logger == nil {
		logger = zap.NewNop()
	}
	if timeout <= 0 {
		timeout = DefaultTimeout
	}

	cleaned := make([]string, 0, len(urls))
	for _, raw := range urls {
		if trimmed := strings.TrimSpace(raw); trimmed != "" {
			cleaned = append(cleaned, trimmed)
		}
	}

	return &Reporter{
		urls:       cleaned,
		httpClient: httpclient.New(timeout),
		logger:     logger,
	}
}

// Report sends event to every configured URL in the background and returns immediately.
func (r *Reporter) Report(ctx context.Context, event model.TimeoutEvent) {
	if r == nil || len(r.urls) == 0 {
		return
	}

	ctx = context.WithoutCancel(ctx)
	for _, url := range r.urls {
		r.wg.Add(1)
		go func(url string) {
			defer r.wg.Done()
			if err := r.Send(ctx, url, event); err != nil {
				webhookFailuresTotal.Inc()
				r.logger.Warn("stats webhook failed", zap.String("url", url), zap.Error(err))
				return
			}
			webhookSentTotal.Inc()
		}(url)
	}
}

// Wait blocks until every in-flight delivery has finished.
func (r *Reporter) Wait() {
	if r == nil {
		return
	}
	r.wg.Wait()
}

func (r *Reporter) Send(ctx context.Context, url string, event model.TimeoutEvent) error {
	body, err := json.Marshal(payload{
		Discord: discordPayload{UserID: event.AuthorID, GuildID: event.GuildID},
		Timeout: timeoutPayload{Duration: event.Minutes},
	})
	if err != nil {
		return fmt.Errorf("marshal stats payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build stats request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := r.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("post stats: %w", err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("post stats: status=%d", resp.StatusCode)
	}
	return nil
}
