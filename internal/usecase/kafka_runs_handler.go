package usecase

import (
	"context"
	"encoding/json"
	"errors"
	"strings"

	"ProTrdx/internal/domain/errs"
	applogger "ProTrdx/pkg/logger"
	pkgkafka "ProTrdx/pkg/kafka"
)

// KafkaRunHandler triggers runs from messages shaped {"ticker": "AAPL"}.
// An empty ticker runs the whole watchlist.
type KafkaRunHandler struct {
	topic   string
	trigger Trigger
	logger  *applogger.Logger
}

func NewKafkaRunHandler(topic string, trigger Trigger, l *applogger.Logger) *KafkaRunHandler {
	if l == nil {
		l = applogger.NewNop()
	}
	return &KafkaRunHandler{topic: topic, trigger: trigger, logger: l}
}

func (h *KafkaRunHandler) Topic() string { return h.topic }

// Handle drops requests that can never succeed so the consumer does not
// retry them.
func (h *KafkaRunHandler) Handle(ctx context.Context, b []byte) error {
	var m struct {
		Ticker string `json:"ticker"`
	}
	if err := json.Unmarshal(b, &m); err != nil {
		h.logger.Warn("malformed run request dropped", applogger.Error(err))
		return nil
	}
	ticker := strings.ToUpper(strings.TrimSpace(m.Ticker))

	jobID, err := h.trigger.TriggerRun(ctx, ticker)
	switch {
	case errors.Is(err, errs.ErrNotFound), errors.Is(err, errs.ErrConflict):
		h.logger.Warn("run request rejected", applogger.String("ticker", ticker), applogger.Error(err))
		return nil
	case err != nil:
		return err
	}
	h.logger.Info("run requested via kafka", applogger.String("job_id", jobID), applogger.String("ticker", ticker))
	return nil
}

var _ pkgkafka.MessageHandler = (*KafkaRunHandler)(nil)
