package alerting

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/rs/zerolog"
)

// discordMaxContent 是 webhook content 字段上限。
const discordMaxContent = 2000

// DiscordNotifier 通过 webhook 推送到 Discord 频道。
type DiscordNotifier struct {
	webhookURL string
	client     *http.Client
	logger     zerolog.Logger
}

func NewDiscordNotifier(webhookURL string, timeout time.Duration, logger zerolog.Logger) *DiscordNotifier {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &DiscordNotifier{
		webhookURL: webhookURL,
		client:     &http.Client{Timeout: timeout},
		logger:     logger.With().Str("component", "alert_discord").Logger(),
	}
}

func (d *DiscordNotifier) Name() string { return "discord" }

func (d *DiscordNotifier) Notify(ctx context.Context, note Notification) error {
	chunks := splitText(note.Text, discordMaxContent)
	for i, chunk := range chunks {
		if err := d.post(ctx, chunk); err != nil {
			return fmt.Errorf("discord chunk %d/%d: %w", i+1, len(chunks), err)
		}
	}
	d.logger.Info().Str("cycle_id", note.CycleID).Int("messages", len(chunks)).Msg("报告已发送 (Discord)")
	return nil
}

func (d *DiscordNotifier) post(ctx context.Context, content string) error {
	body, err := json.Marshal(map[string]string{"content": content})
	if err != nil {
		return fmt.Errorf("marshal discord payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, d.webhookURL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create discord request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := d.client.Do(req)
	if err != nil {
		return fmt.Errorf("send discord request: %w", err)
	}
	defer resp.Body.Close()

	// 成功时返回 204 No Content
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return fmt.Errorf("discord 响应码异常: %d: %s", resp.StatusCode, string(respBody))
	}
	return nil
}

var _ Notifier = (*DiscordNotifier)(nil)
