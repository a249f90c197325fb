package alerting

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

// TelegramBot 是文本与图片推送共用的 Bot API 客户端。客户端在首次发送时创建，
// 因为创建时会调用 getMe。
type TelegramBot struct {
	token    string
	chatID   string
	endpoint string
	client   *http.Client

	mu  sync.Mutex
	api *tgbotapi.BotAPI
}

// NewTelegramBot 构造共享客户端，baseURL 为空时使用官方 API。
func NewTelegramBot(token, chatID, baseURL string, timeout time.Duration) *TelegramBot {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	endpoint := tgbotapi.APIEndpoint
	if baseURL != "" {
		endpoint = strings.TrimRight(baseURL, "/") + "/bot%s/%s"
	}
	return &TelegramBot{
		token:    token,
		chatID:   chatID,
		endpoint: endpoint,
		client:   &http.Client{Timeout: timeout},
	}
}

func (b *TelegramBot) botAPI() (*tgbotapi.BotAPI, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.api != nil {
		return b.api, nil
	}
	api, err := tgbotapi.NewBotAPIWithClient(b.token, b.endpoint, b.client)
	if err != nil {
		return nil, fmt.Errorf("init telegram bot: %w", err)
	}
	b.api = api
	return api, nil
}

// send 发送一条请求。Bot API 客户端不接受 context，只在发送前检查取消。
func (b *TelegramBot) send(ctx context.Context, c tgbotapi.Chattable) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	api, err := b.botAPI()
	if err != nil {
		return err
	}
	_, err = api.Send(c)
	return err
}

func (b *TelegramBot) sendText(ctx context.Context, text string) error {
	var msg tgbotapi.MessageConfig
	if id, ok := b.numericChat(); ok {
		msg = tgbotapi.NewMessage(id, text)
	} else {
		msg = tgbotapi.NewMessageToChannel(b.chatID, text)
	}
	msg.ParseMode = tgbotapi.ModeMarkdown
	msg.DisableWebPagePreview = true
	return b.send(ctx, msg)
}

func (b *TelegramBot) sendPhoto(ctx context.Context, name string, png []byte, caption string) error {
	file := tgbotapi.FileBytes{Name: name, Bytes: png}
	var photo tgbotapi.PhotoConfig
	if id, ok := b.numericChat(); ok {
		photo = tgbotapi.NewPhoto(id, file)
	} else {
		photo = tgbotapi.NewPhotoToChannel(b.chatID, file)
	}
	photo.Caption = caption
	return b.send(ctx, photo)
}

// numericChat 区分数字 chat id 与 @channel 用户名。
func (b *TelegramBot) numericChat() (int64, bool) {
	id, err := strconv.ParseInt(b.chatID, 10, 64)
	return id, err == nil
}
