package alerting

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"
)

// PhotoSender 推送图表图片。
type PhotoSender interface {
	SendPhoto(ctx context.Context, name string, png []byte, caption string) error
}

// TelegramPhotoSender 通过共享的 Bot API 客户端上传图片。
type TelegramPhotoSender struct {
	bot    *TelegramBot
	logger zerolog.Logger
}

// NewTelegramPhotoSender 构造图片推送器。
func NewTelegramPhotoSender(bot *TelegramBot, logger zerolog.Logger) *TelegramPhotoSender {
	return &TelegramPhotoSender{
		bot:    bot,
		logger: logger.With().Str("component", "alert_telegram_photo").Logger(),
	}
}

func (s *TelegramPhotoSender) SendPhoto(ctx context.Context, name string, png []byte, caption string) error {
	if err := s.bot.sendPhoto(ctx, name, png, caption); err != nil {
		return fmt.Errorf("send telegram photo: %w", err)
	}
	s.logger.Info().Str("file", name).Int("bytes", len(png)).Msg("图表已发送 (Telegram)")
	return nil
}

var _ PhotoSender = (*TelegramPhotoSender)(nil)
