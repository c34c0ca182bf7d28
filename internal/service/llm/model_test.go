package llm

import (
	"context"
	"errors"
	"testing"

	"ProTrdx/pkg/config"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/schema"
)

type fakeModel struct {
	messages []llms.MessageContent
	opts     llms.CallOptions
	resp     *llms.ContentResponse
	err      error
}

func (f *fakeModel) GenerateContent(_ context.Context, messages []llms.MessageContent, options ...llms.CallOption) (*llms.ContentResponse, error) {
	f.messages = messages
	for _, o := range options {
		o(&f.opts)
	}
	return f.resp, f.err
}

func (f *fakeModel) Call(context.Context, string, ...llms.CallOption) (string, error) {
	return "", errors.New("not used")
}

func TestGenerateJSONSendsSystemAndUser(t *testing.T) {
	f := &fakeModel{resp: &llms.ContentResponse{Choices: []*llms.ContentChoice{{Content: `{"decisions":[]}`}}}}
	m := New(f, ProviderOpenAI, "gpt-4o-mini", 0.2, 0)

	out, err := m.GenerateJSON(context.Background(), "sys", "usr")
	require.NoError(t, err)
	assert.Equal(t, `{"decisions":[]}`, out)

	require.Len(t, f.messages, 2)
	assert.Equal(t, schema.ChatMessageTypeSystem, f.messages[0].Role)
	assert.Equal(t, schema.ChatMessageTypeHuman, f.messages[1].Role)
	assert.True(t, f.opts.JSONMode)
	assert.InDelta(t, 0.2, f.opts.Temperature, 1e-9)
}

func TestGenerateJSONErrors(t *testing.T) {
	empty := New(&fakeModel{resp: &llms.ContentResponse{}}, ProviderOllama, "llama3", 0.2, 0)
	_, err := empty.GenerateJSON(context.Background(), "s", "u")
	assert.ErrorContains(t, err, "no response choices")

	failing := New(&fakeModel{err: errors.New("429")}, ProviderAnthropic, "claude", 0.2, 0)
	_, err = failing.GenerateJSON(context.Background(), "s", "u")
	assert.ErrorContains(t, err, "429")
}

func TestNewModelRequiresKeys(t *testing.T) {
	cfg := config.Default()
	cfg.LLM.Provider = ProviderOpenAI
	_, err := NewModel(cfg)
	assert.Error(t, err)

	cfg.LLM.Provider = ProviderAnthropic
	_, err = NewModel(cfg)
	assert.Error(t, err)

	cfg.LLM.Provider = "bard"
	_, err = NewModel(cfg)
	assert.Error(t, err)
}
