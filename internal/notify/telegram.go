package notify

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/nulzo/content-orchestrator/internal/httpclient"
)

const telegramAPI = "https://api.telegram.org"

// ErrNotConfigured is returned when the bot token or chat id is missing.
var ErrNotConfigured = errors.New("telegram credentials not configured")

var typeEmoji = map[Type]string{
	TypeNewContent:    "🆕",
	TypeError:         "❌",
	TypeWeeklySummary: "📊",
	TypeInfo:          "ℹ️",
}

// TelegramNotifier posts notifications through the Bot API sendMessage call.
type TelegramNotifier struct {
	baseURL string
	token   string
	chatID  string
	client  httpclient.HTTPClient
}

type TelegramOption func(*TelegramNotifier)

// WithTelegramBaseURL points the notifier at another Bot API host.
func WithTelegramBaseURL(u string) TelegramOption {
	return func(t *TelegramNotifier) { t.baseURL = strings.TrimRight(u, "/") }
}

func NewTelegramNotifier(token, chatID string, client httpclient.HTTPClient, opts ...TelegramOption) *TelegramNotifier {
	if client == nil {
		client = http.DefaultClient
	}
	t := &TelegramNotifier{baseURL: telegramAPI, token: token, chatID: chatID, client: client}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

type inlineButton struct {
	Text string `json:"text"`
	URL  string `json:"url"`
}

type replyMarkup struct {
	InlineKeyboard [][]inlineButton `json:"inline_keyboard"`
}

type sendMessageRequest struct {
	ChatID      string       `json:"chat_id"`
	Text        string       `json:"text"`
	ParseMode   string       `json:"parse_mode"`
	ReplyMarkup *replyMarkup `json:"reply_markup,omitempty"`
}

func (t *TelegramNotifier) Notify(ctx context.Context, n Notification) error {
	if t.token == "" || t.chatID == "" {
		return ErrNotConfigured
	}

	req := sendMessageRequest{
		ChatID:    t.chatID,
		Text:      FormatMarkdown(n),
		ParseMode: "MarkdownV2",
	}
	if len(n.Actions) > 0 {
		row := make([]inlineButton, 0, len(n.Actions))
		for _, a := range n.Actions {
			row = append(row, inlineButton(a))
		}
		req.ReplyMarkup = &replyMarkup{InlineKeyboard: [][]inlineButton{row}}
	}

	endpoint := fmt.Sprintf("%s/bot%s/sendMessage", t.baseURL, t.token)
	if err := httpclient.SendRequest(ctx, t.client, http.MethodPost, endpoint, nil, req, nil); err != nil {
		// the url carries the token, keep it out of the error
		var urlErr *url.Error
		if errors.As(err, &urlErr) {
			return fmt.Errorf("telegram sendMessage failed: %w", urlErr.Err)
		}
		return fmt.Errorf("telegram sendMessage failed: status %d", httpclient.StatusCode(err))
	}
	return nil
}

// FormatMarkdown renders n as a MarkdownV2 message: emoji, bold title, body.
func FormatMarkdown(n Notification) string {
	emoji := typeEmoji[n.Type]
	if emoji == "" {
		emoji = typeEmoji[TypeInfo]
	}
	return fmt.Sprintf("%s *%s*\n\n%s", emoji, EscapeMarkdown(n.Title), EscapeMarkdown(n.Body))
}

var markdownReplacer = func() *strings.Replacer {
	const special = "_*[]()~`>#+-=|{}.!\\"
	pairs := make([]string, 0, len(special)*2)
	for _, r := range special {
		pairs = append(pairs, string(r), "\\"+string(r))
	}
	return strings.NewReplacer(pairs...)
}()

// EscapeMarkdown escapes every MarkdownV2 control character.
func EscapeMarkdown(s string) string {
	return markdownReplacer.Replace(s)
}
