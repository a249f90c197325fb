package alerting

import (
	"context"
	"fmt"
	"strings"

	"github.com/rs/zerolog"
)

// telegramMaxText 是 sendMessage 的单条文本上限。
const telegramMaxText = 4096

// Notification 封装一次周期报告的推送内容。
type Notification struct {
	CycleID string
	Title   string
	// Text 为 Markdown 格式正文。
	Text string
}

// Notifier 定义告警输送接口。
type Notifier interface {
	Notify(ctx context.Context, notification Notification) error
	Name() string
}

// TelegramNotifier 通过 Telegram Bot API 推送消息。
type TelegramNotifier struct {
	bot    *TelegramBot
	logger zerolog.Logger
}

// NewTelegramNotifier 构造 Telegram 告警器。
func NewTelegramNotifier(bot *TelegramBot, logger zerolog.Logger) *TelegramNotifier {
	return &TelegramNotifier{
		bot:    bot,
		logger: logger.With().Str("component", "alert_telegram").Logger(),
	}
}

func (n *TelegramNotifier) Name() string { return "telegram" }

// Notify 调用 sendMessage API 推送文本，超长时按行切分为多条。
func (n *TelegramNotifier) Notify(ctx context.Context, note Notification) error {
	chunks := splitText(note.Text, telegramMaxText)
	for i, chunk := range chunks {
		if err := n.bot.sendText(ctx, chunk); err != nil {
			return fmt.Errorf("telegram chunk %d/%d: %w", i+1, len(chunks), err)
		}
	}

	n.logger.Info().
		Str("cycle_id", note.CycleID).
		Int("messages", len(chunks)).
		Msg("报告已发送 (Telegram)")
	return nil
}

// splitText 按换行切分文本，保证每段不超过 limit 字节；单行过长时硬切。
func splitText(text string, limit int) []string {
	if len(text) <= limit {
		return []string{text}
	}

	chunks := make([]string, 0, len(text)/limit+1)
	var current strings.Builder
	flush := func() {
		if current.Len() > 0 {
			chunks = append(chunks, current.String())
			current.Reset()
		}
	}

	for _, line := range strings.SplitAfter(text, "\n") {
		for len(line) > limit {
			flush()
			chunks = append(chunks, line[:limit])
			line = line[limit:]
		}
		if current.Len()+len(line) > limit {
			flush()
		}
		current.WriteString(line)
	}
	flush()
	return chunks
}

var _ Notifier = (*TelegramNotifier)(nil)
