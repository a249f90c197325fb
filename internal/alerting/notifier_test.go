package alerting

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

const sentMessage = `{"ok":true,"result":{"message_id":1,"date":0,"chat":{"id":42,"type":"private"}}}`

// fakeTelegram 应答 getMe，其余请求交给 handle；getMe 计数写入 getMe。
func fakeTelegram(t *testing.T, getMe *atomic.Int32, handle http.HandlerFunc) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if strings.HasSuffix(r.URL.Path, "/bottoken/getMe") {
			if getMe != nil {
				getMe.Add(1)
			}
			_, _ = w.Write([]byte(`{"ok":true,"result":{"id":1,"is_bot":true,"first_name":"bot","username":"bot"}}`))
			return
		}
		handle(w, r)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestTelegramNotifierSuccess(t *testing.T) {
	var received url.Values
	srv := fakeTelegram(t, nil, func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasSuffix(r.URL.Path, "/bottoken/sendMessage") {
			t.Errorf("路径应为 /bottoken/sendMessage, 实际 %s", r.URL.Path)
		}
		if err := r.ParseForm(); err != nil {
			t.Errorf("解析表单失败: %v", err)
		}
		received = r.PostForm
		_, _ = w.Write([]byte(sentMessage))
	})

	notifier := NewTelegramNotifier(NewTelegramBot("token", "chat", srv.URL, time.Second), testLogger())
	note := Notification{CycleID: "c1", Text: "*report*\nNo alerts this cycle."}

	if err := notifier.Notify(context.Background(), note); err != nil {
		t.Fatalf("Telegram Notify 应成功: %v", err)
	}

	if received.Get("chat_id") != "chat" {
		t.Fatalf("chat_id 不正确: %#v", received)
	}
	if received.Get("text") != note.Text {
		t.Fatalf("text 不正确: %#v", received.Get("text"))
	}
	if received.Get("parse_mode") != "Markdown" {
		t.Fatalf("parse_mode 应为 Markdown: %#v", received)
	}
	if received.Get("disable_web_page_preview") != "true" {
		t.Fatalf("应关闭链接预览: %#v", received)
	}
}

func TestTelegramNotifierError(t *testing.T) {
	srv := fakeTelegram(t, nil, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"ok":false,"error_code":400,"description":"Bad Request: chat not found"}`))
	})

	notifier := NewTelegramNotifier(NewTelegramBot("token", "chat", srv.URL, time.Second), testLogger())
	err := notifier.Notify(context.Background(), Notification{Text: "x"})
	if err == nil {
		t.Fatal("ok=false 应报错")
	}
	if !strings.Contains(err.Error(), "chat not found") {
		t.Fatalf("错误信息应包含 description: %v", err)
	}
}

func TestTelegramNotifierCanceledContext(t *testing.T) {
	var calls atomic.Int32
	srv := fakeTelegram(t, &calls, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		_, _ = w.Write([]byte(sentMessage))
	})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	notifier := NewTelegramNotifier(NewTelegramBot("token", "chat", srv.URL, time.Second), testLogger())
	if err := notifier.Notify(ctx, Notification{Text: "x"}); !errors.Is(err, context.Canceled) {
		t.Fatalf("已取消的 context 应返回 Canceled: %v", err)
	}
	if calls.Load() != 0 {
		t.Fatalf("取消后不应发出请求, 实际 %d", calls.Load())
	}
}

func TestTelegramNotifierSplitsLongText(t *testing.T) {
	var calls atomic.Int32
	srv := fakeTelegram(t, nil, func(w http.ResponseWriter, r *http.Request) {
		if text := r.FormValue("text"); len(text) > telegramMaxText {
			t.Errorf("单条消息超长: %d", len(text))
		}
		calls.Add(1)
		_, _ = w.Write([]byte(sentMessage))
	})

	line := strings.Repeat("a", 99) + "\n"
	text := strings.Repeat(line, 100)

	notifier := NewTelegramNotifier(NewTelegramBot("token", "chat", srv.URL, time.Second), testLogger())
	if err := notifier.Notify(context.Background(), Notification{Text: text}); err != nil {
		t.Fatalf("Notify 应成功: %v", err)
	}
	if calls.Load() != 3 {
		t.Fatalf("10000 字节应拆分为 3 条, 实际 %d", calls.Load())
	}
}

func TestSplitText(t *testing.T) {
	chunks := splitText("ab\ncd\nef\n", 6)
	if len(chunks) != 2 || chunks[0] != "ab\ncd\n" || chunks[1] != "ef\n" {
		t.Fatalf("按行切分结果不正确: %q", chunks)
	}

	chunks = splitText(strings.Repeat("x", 10), 4)
	if strings.Join(chunks, "") != strings.Repeat("x", 10) {
		t.Fatalf("硬切后内容应完整: %q", chunks)
	}
	for _, c := range chunks {
		if len(c) > 4 {
			t.Fatalf("分段超长: %q", c)
		}
	}
}

func TestDiscordNotifier(t *testing.T) {
	var content string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body map[string]string
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			t.Fatalf("解析请求体失败: %v", err)
		}
		content = body["content"]
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	notifier := NewDiscordNotifier(srv.URL, time.Second, testLogger())
	if err := notifier.Notify(context.Background(), Notification{Text: "hello"}); err != nil {
		t.Fatalf("Discord Notify 应成功: %v", err)
	}
	if content != "hello" {
		t.Fatalf("content 不正确: %q", content)
	}
}

func TestDiscordNotifierStatusError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "rate limited", http.StatusTooManyRequests)
	}))
	defer srv.Close()

	notifier := NewDiscordNotifier(srv.URL, time.Second, testLogger())
	if err := notifier.Notify(context.Background(), Notification{Text: "hello"}); err == nil {
		t.Fatal("429 应报错")
	}
}

type stubNotifier struct {
	name  string
	err   error
	calls int
}

func (s *stubNotifier) Name() string { return s.name }

func (s *stubNotifier) Notify(context.Context, Notification) error {
	s.calls++
	return s.err
}

func TestMultiContinuesAfterFailure(t *testing.T) {
	boom := errors.New("boom")
	failing := &stubNotifier{name: "a", err: boom}
	ok := &stubNotifier{name: "b"}

	m := NewMulti(testLogger(), failing, ok)
	err := m.Notify(context.Background(), Notification{Text: "x"})
	if !errors.Is(err, boom) {
		t.Fatalf("应返回失败渠道的错误: %v", err)
	}
	if ok.calls != 1 {
		t.Fatal("失败渠道不应阻断其他渠道")
	}

	if err := NewMulti(testLogger()).Notify(context.Background(), Notification{}); err != nil {
		t.Fatalf("无渠道时应返回 nil: %v", err)
	}
}

func TestTelegramPhotoSender(t *testing.T) {
	var gotPhoto atomic.Bool
	srv := fakeTelegram(t, nil, func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasSuffix(r.URL.Path, "/sendPhoto") {
			t.Errorf("unexpected path %s", r.URL.Path)
			return
		}
		if err := r.ParseMultipartForm(1 << 20); err != nil {
			t.Errorf("应为 multipart 上传: %v", err)
		}
		if r.FormValue("chat_id") != "42" || r.FormValue("caption") != "gainers" {
			t.Errorf("表单字段不正确: %v", r.Form)
		}
		gotPhoto.Store(true)
		_, _ = w.Write([]byte(sentMessage))
	})

	sender := NewTelegramPhotoSender(NewTelegramBot("token", "42", srv.URL, time.Second), testLogger())
	if err := sender.SendPhoto(context.Background(), "gainers.png", []byte("\x89PNG"), "gainers"); err != nil {
		t.Fatalf("SendPhoto 应成功: %v", err)
	}
	if !gotPhoto.Load() {
		t.Fatal("未收到 sendPhoto 请求")
	}
}

func TestTelegramTextAndPhotoShareClient(t *testing.T) {
	var getMe atomic.Int32
	var paths []string
	var mu sync.Mutex
	srv := fakeTelegram(t, &getMe, func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		paths = append(paths, r.URL.Path[strings.LastIndex(r.URL.Path, "/")+1:])
		mu.Unlock()
		_, _ = w.Write([]byte(sentMessage))
	})

	bot := NewTelegramBot("token", "42", srv.URL, time.Second)
	notifier := NewTelegramNotifier(bot, testLogger())
	sender := NewTelegramPhotoSender(bot, testLogger())

	if err := notifier.Notify(context.Background(), Notification{Text: "report"}); err != nil {
		t.Fatalf("Notify 应成功: %v", err)
	}
	if err := sender.SendPhoto(context.Background(), "losers.png", []byte("\x89PNG"), "losers"); err != nil {
		t.Fatalf("SendPhoto 应成功: %v", err)
	}
	if getMe.Load() != 1 {
		t.Fatalf("文本与图片应共用一个客户端, getMe 调用 %d 次", getMe.Load())
	}
	if strings.Join(paths, ",") != "sendMessage,sendPhoto" {
		t.Fatalf("请求顺序不正确: %v", paths)
	}
}

func testLogger() zerolog.Logger {
	return zerolog.Nop()
}
