package notify

import (
	"context"
	"fmt"
	"path/filepath"

	xhttp "ProTrdx/pkg/http"
)

// Slack posts the caption to an incoming webhook. Files are not uploaded;
// the chart name is appended so the operator can fetch it from the API.
type Slack struct {
	client     *xhttp.Client
	webhookURL string
}

func NewSlack(client *xhttp.Client, webhookURL string) *Slack {
	return &Slack{client: client, webhookURL: webhookURL}
}

func (s *Slack) Name() string { return "slack" }

func (s *Slack) Notify(ctx context.Context, caption, chartPath string) error {
	text := "```" + caption + "```"
	if chartPath != "" {
		text += "\nchart: /api/charts/" + filepath.Base(chartPath)
	}
	err := s.client.SendAndParse(ctx, &xhttp.RequestOptions{
		Method: xhttp.MethodPost,
		URL:    s.webhookURL,
		Body:   map[string]string{"text": text},
	}, nil)
	if err != nil {
		return fmt.Errorf("slack webhook: %w", err)
	}
	return nil
}
