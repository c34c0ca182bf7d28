// Package notify delivers job summaries to operator channels.
package notify

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"mime/multipart"
	"os"
	"path/filepath"

	xhttp "ProTrdx/pkg/http"
)

// Telegram posts through the Bot API. Charts are sent as documents since the
// photo endpoint does not accept SVG.
type Telegram struct {
	client  *xhttp.Client
	baseURL string
	token   string
	chatID  string
}

func NewTelegram(client *xhttp.Client, baseURL, token, chatID string) *Telegram {
	if baseURL == "" {
		baseURL = "https://api.telegram.org"
	}
	return &Telegram{client: client, baseURL: baseURL, token: token, chatID: chatID}
}

func (t *Telegram) Name() string { return "telegram" }

func (t *Telegram) Notify(ctx context.Context, caption, chartPath string) error {
	if chartPath == "" {
		return t.sendMessage(ctx, caption)
	}
	return t.sendDocument(ctx, caption, chartPath)
}

type telegramResponse struct {
	OK          bool   `json:"ok"`
	Description string `json:"description"`
}

func (t *Telegram) endpoint(method string) string {
	return fmt.Sprintf("%s/bot%s/%s", t.baseURL, t.token, method)
}

func (t *Telegram) sendMessage(ctx context.Context, text string) error {
	var resp telegramResponse
	err := t.client.SendAndParse(ctx, &xhttp.RequestOptions{
		Method: xhttp.MethodPost,
		URL:    t.endpoint("sendMessage"),
		Body: map[string]string{
			"chat_id": t.chatID,
			"text":    text,
		},
	}, &resp)
	return telegramResult("sendMessage", resp, err)
}

func (t *Telegram) sendDocument(ctx context.Context, caption, path string) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("telegram sendDocument: open chart: %w", err)
	}
	defer f.Close()

	var body bytes.Buffer
	w := multipart.NewWriter(&body)
	if err := w.WriteField("chat_id", t.chatID); err != nil {
		return err
	}
	if err := w.WriteField("caption", caption); err != nil {
		return err
	}
	part, err := w.CreateFormFile("document", filepath.Base(path))
	if err != nil {
		return err
	}
	if _, err := io.Copy(part, f); err != nil {
		return fmt.Errorf("telegram sendDocument: copy chart: %w", err)
	}
	if err := w.Close(); err != nil {
		return err
	}

	var resp telegramResponse
	err = t.client.SendAndParse(ctx, &xhttp.RequestOptions{
		Method:  xhttp.MethodPost,
		URL:     t.endpoint("sendDocument"),
		Headers: map[string]string{"Content-Type": w.FormDataContentType()},
		Body:    &body,
	}, &resp)
	return telegramResult("sendDocument", resp, err)
}

func telegramResult(method string, resp telegramResponse, err error) error {
	if err != nil {
		return fmt.Errorf("telegram %s: %w", method, err)
	}
	if !resp.OK {
		return fmt.Errorf("telegram %s: %s", method, resp.Description)
	}
	return nil
}
