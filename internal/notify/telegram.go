package notify

import (
	"context"
	"fmt"
	"os"
	"time"

	xhttp "TradeFuse/pkg/http"
)

const telegramAPI = "https://api.telegram.org"

// TelegramClient sends operator messages through the Telegram bot API.
type TelegramClient struct {
	client      *xhttp.Client
	botTokenEnv string
	chatIDs     []string
}

// NewTelegramClient creates a client. botTokenEnv names the environment
// variable holding the bot token.
func NewTelegramClient(botTokenEnv string, chatIDs []string, timeout time.Duration) *TelegramClient {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &TelegramClient{
		client:      xhttp.NewClient(xhttp.WithTimeout(timeout)),
		botTokenEnv: botTokenEnv,
		chatIDs:     chatIDs,
	}
}

type sendMessageReq struct {
	ChatID    string `json:"chat_id"`
	Text      string `json:"text"`
	ParseMode string `json:"parse_mode"`
}

type sendMessageResp struct {
	OK bool `json:"ok"`
}

// Send delivers text to every configured chat.
func (t *TelegramClient) Send(ctx context.Context, text string) error {
	token := os.Getenv(t.botTokenEnv)
	if token == "" {
		return fmt.Errorf("telegram bot token missing (env %s)", t.botTokenEnv)
	}

	url := fmt.Sprintf("%s/bot%s/sendMessage", telegramAPI, token)
	for _, chatID := range t.chatIDs {
		var resp sendMessageResp
		err := t.client.SendAndParse(ctx, &xhttp.RequestOptions{
			Method: xhttp.MethodPost,
			URL:    url,
			Body: sendMessageReq{
				ChatID:    chatID,
				Text:      text,
				ParseMode: "Markdown",
			},
		}, &resp)
		if err != nil {
			return fmt.Errorf("telegram send to %s: %w", chatID, err)
		}
		if !resp.OK {
			return fmt.Errorf("telegram rejected message for chat %s", chatID)
		}
	}
	return nil
}
