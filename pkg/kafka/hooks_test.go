package kafka

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	applogger "ProTrdx/pkg/logger"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMaxSizeHookRejectsLargePayload(t *testing.T) {
	h := MaxSizeHook(8)

	_, _, _, err := h.BeforeHandle(context.Background(), "runs", kafka.Message{}, []byte(`{"t":1}`))
	require.NoError(t, err)

	_, _, _, err = h.BeforeHandle(context.Background(), "runs", kafka.Message{}, []byte(strings.Repeat("x", 9)))
	var he *HookError
	require.ErrorAs(t, err, &he)
	assert.Equal(t, "ERR_VALIDATION", he.Code)
}

func TestHookChainStopsOnBeforeError(t *testing.T) {
	var calls []string
	first := HookFuncs{
		Before: func(ctx context.Context, _ string, km kafka.Message, data []byte) (context.Context, kafka.Message, []byte, error) {
			calls = append(calls, "first")
			return ctx, km, data, errors.New("stop")
		},
	}
	second := HookFuncs{
		Before: func(ctx context.Context, _ string, km kafka.Message, data []byte) (context.Context, kafka.Message, []byte, error) {
			calls = append(calls, "second")
			return ctx, km, data, nil
		},
	}

	_, _, _, err := NewHookChain(first, second).BeforeHandle(context.Background(), "runs", kafka.Message{}, nil)
	require.Error(t, err)
	assert.Equal(t, []string{"first"}, calls)
}

func TestLoggingHookStampsContext(t *testing.T) {
	h := LoggingHook(applogger.NewNop())
	km := kafka.Message{Headers: []kafka.Header{{Key: TraceHeader, Value: []byte("abc")}}}

	ctx, _, _, err := h.BeforeHandle(context.Background(), "runs", km, nil)
	require.NoError(t, err)
	assert.Equal(t, "abc", TraceID(ctx))
	start, ok := StartTime(ctx)
	require.True(t, ok)
	assert.WithinDuration(t, time.Now(), start, time.Second)

	assert.NotPanics(t, func() { h.AfterHandle(ctx, "runs", km, nil, errors.New("boom")) })
}
