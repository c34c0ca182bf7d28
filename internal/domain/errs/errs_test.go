package errs

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestErrorMatchesKindThroughWrapping(t *testing.T) {
	cause := errors.New("connection refused")
	err := fmt.Errorf("fetch AAPL: %w", Wrap(ErrUpstreamUnavailable, "finnhub.candles", cause))

	assert.ErrorIs(t, err, ErrUpstreamUnavailable)
	assert.ErrorIs(t, err, cause)
	assert.NotErrorIs(t, err, ErrData)
	assert.Equal(t, ErrUpstreamUnavailable, KindOf(err))
}

func TestWrapNil(t *testing.T) {
	assert.NoError(t, Wrap(ErrData, "op", nil))
}

func TestErrorMessage(t *testing.T) {
	err := New(ErrData, "features.snapshot", "need %d bars, got %d", 50, 12)
	assert.Equal(t, "features.snapshot: data error: need 50 bars, got 12", err.Error())
	assert.Nil(t, KindOf(errors.New("plain")))
}
