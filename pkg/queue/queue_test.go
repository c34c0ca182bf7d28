package queue

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseMode(t *testing.T) {
	tests := []struct {
		in   string
		want QueueMode
	}{
		{"", ModeProducerConsumer},
		{"both", ModeProducerConsumer},
		{"producer", ModeProducerOnly},
		{"consumer", ModeConsumerOnly},
	}
	for _, tt := range tests {
		got, err := ParseMode(tt.in)
		require.NoError(t, err, tt.in)
		assert.Equal(t, tt.want, got, tt.in)
	}

	_, err := ParseMode("worker")
	assert.Error(t, err)
}

func TestRedisQueueModeNames(t *testing.T) {
	for mode, want := range map[QueueMode]string{
		ModeProducerConsumer: "producer-consumer",
		ModeProducerOnly:     "producer-only",
		ModeConsumerOnly:     "consumer-only",
	} {
		q := &RedisQueue{mode: mode}
		assert.Equal(t, want, q.getModeString())
	}
}
