package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/cleanops/go-intake-backend/internal/config"
)

// InlineButton is one button of an inline keyboard row.
type InlineButton struct {
	Text         string `json:"text"`
	CallbackData string `json:"callback_data,omitempty"`
	URL          string `json:"url,omitempty"`
}

// InlineKeyboard is rows of buttons in Telegram reply-markup shape.
type InlineKeyboard struct {
	InlineKeyboard [][]InlineButton `json:"inline_keyboard"`
}

// SingleRowKeyboard builds a keyboard with each button on its own row.
func SingleRowKeyboard(buttons ...InlineButton) *InlineKeyboard {
	rows := make([][]InlineButton, 0, len(buttons))
	for _, b := range buttons {
		rows = append(rows, []InlineButton{b})
	}
	return &InlineKeyboard{InlineKeyboard: rows}
}

// apiResponse is the generic bot API envelope.
type apiResponse struct {
	OK          bool            `json:"ok"`
	Description string          `json:"description"`
	Result      json.RawMessage `json:"result"`
}

// BotClient talks to the Telegram bot HTTP API. All methods are POSTs with a
// JSON body, authenticated by the token in the URL path.
type BotClient struct {
	http  *resty.Client
	token string
	base  string
}

// NewBotClient builds a client against cfg.APIBase (the production API unless
// overridden for tests).
func NewBotClient(cfg config.TelegramConfig) *BotClient {
	return &BotClient{
		http:  resty.New().SetTimeout(15 * time.Second),
		token: cfg.BotToken,
		base:  cfg.APIBase,
	}
}

// Enabled reports whether a bot token is configured.
func (c *BotClient) Enabled() bool { return c.token != "" }

func (c *BotClient) call(ctx context.Context, method string, body any, out *apiResponse) error {
	resp, err := c.http.R().
		SetContext(ctx).
		SetHeader("Content-Type", "application/json").
		SetBody(body).
		Post(fmt.Sprintf("%s/bot%s/%s", c.base, c.token, method))
	if err != nil {
		return fmt.Errorf("telegram %s: %w", method, err)
	}
	// The envelope is decoded from the raw body: error responses carry the
	// same shape with ok=false.
	if err := json.Unmarshal(resp.Body(), out); err != nil {
		return fmt.Errorf("telegram %s: decode response: %w", method, err)
	}
	if !out.OK {
		return fmt.Errorf("telegram %s: api error %d: %s", method, resp.StatusCode(), out.Description)
	}
	return nil
}

// SendMessage posts an HTML-mode message, optionally with an inline keyboard.
// It returns the new message id.
func (c *BotClient) SendMessage(ctx context.Context, chatID int64, text string, keyboard *InlineKeyboard) (int64, error) {
	body := map[string]any{
		"chat_id":    chatID,
		"text":       text,
		"parse_mode": "HTML",
	}
	if keyboard != nil {
		body["reply_markup"] = keyboard
	}
	var resp apiResponse
	if err := c.call(ctx, "sendMessage", body, &resp); err != nil {
		return 0, err
	}
	var result struct {
		MessageID int64 `json:"message_id"`
	}
	if err := json.Unmarshal(resp.Result, &result); err != nil {
		return 0, fmt.Errorf("telegram sendMessage: decode result: %w", err)
	}
	return result.MessageID, nil
}

// EditMessageText replaces the text (and keyboard) of a previously sent
// message, used to finalize the object-confirmation flow.
func (c *BotClient) EditMessageText(ctx context.Context, chatID, messageID int64, text string) error {
	body := map[string]any{
		"chat_id":    chatID,
		"message_id": messageID,
		"text":       text,
		"parse_mode": "HTML",
	}
	var resp apiResponse
	return c.call(ctx, "editMessageText", body, &resp)
}

// AnswerCallbackQuery acknowledges a callback so the client stops its
// spinner.
func (c *BotClient) AnswerCallbackQuery(ctx context.Context, callbackID string) error {
	body := map[string]any{"callback_query_id": callbackID}
	var resp apiResponse
	return c.call(ctx, "answerCallbackQuery", body, &resp)
}

// FileURL resolves a file id to a direct download URL via getFile.
func (c *BotClient) FileURL(ctx context.Context, fileID string) (string, error) {
	body := map[string]any{"file_id": fileID}
	var resp apiResponse
	if err := c.call(ctx, "getFile", body, &resp); err != nil {
		return "", err
	}
	var result struct {
		FilePath string `json:"file_path"`
	}
	if err := json.Unmarshal(resp.Result, &result); err != nil {
		return "", fmt.Errorf("telegram getFile: decode result: %w", err)
	}
	if result.FilePath == "" {
		return "", fmt.Errorf("telegram getFile: empty file_path")
	}
	return fmt.Sprintf("%s/file/bot%s/%s", c.base, c.token, result.FilePath), nil
}
