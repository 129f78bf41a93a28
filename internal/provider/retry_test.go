package provider

import (
	"context"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeProvider struct {
	responses []*ChatResponse
	errs      []error
	calls     int
}

func (f *fakeProvider) Name() string     { return "fake" }
func (f *fakeProvider) Models() []string { return nil }

func (f *fakeProvider) Chat(ctx context.Context, req ChatRequest) (*ChatResponse, error) {
	i := f.calls
	f.calls++
	if i < len(f.errs) && f.errs[i] != nil {
		return nil, f.errs[i]
	}
	if i < len(f.responses) {
		return f.responses[i], nil
	}
	return &ChatResponse{Content: "ok"}, nil
}

func TestRetrierSucceedsAfterTransientError(t *testing.T) {
	transient := NewProviderError(ErrCodeServiceUnavailable, "down", "fake", true)
	fake := &fakeProvider{
		errs:      []error{transient, transient, nil},
		responses: []*ChatResponse{nil, nil, {Content: "recovered"}},
	}

	r := NewRetrier(fake, zerolog.Nop())
	r.delay = 0 // no need to sleep in tests

	resp, err := r.Chat(context.Background(), ChatRequest{})
	require.NoError(t, err)
	assert.Equal(t, "recovered", resp.Content)
	assert.Equal(t, 3, fake.calls)
}

func TestRetrierStopsAtMaxAttempts(t *testing.T) {
	transient := NewProviderError(ErrCodeNetworkError, "unreachable", "fake", true)
	fake := &fakeProvider{errs: []error{transient, transient, transient, transient}}

	r := NewRetrier(fake, zerolog.Nop())
	r.delay = 0

	_, err := r.Chat(context.Background(), ChatRequest{})
	require.Error(t, err)
	assert.Equal(t, DefaultMaxAttempts, fake.calls)
}

func TestRetrierDoesNotRetryNonRetryable(t *testing.T) {
	malformed := NewProviderError(ErrCodeInvalidResponse, "bad json", "fake", false)
	fake := &fakeProvider{errs: []error{malformed}}

	r := NewRetrier(fake, zerolog.Nop())
	r.delay = 0

	_, err := r.Chat(context.Background(), ChatRequest{})
	require.Error(t, err)
	assert.Equal(t, 1, fake.calls)
}

func TestShouldAutoRetry(t *testing.T) {
	tests := []struct {
		name string
		err  *ProviderError
		want bool
	}{
		{"timeout retryable", NewProviderError(ErrCodeTimeout, "", "p", true), true},
		{"timeout not retryable", NewProviderError(ErrCodeTimeout, "", "p", false), false},
		{"invalid response", NewProviderError(ErrCodeInvalidResponse, "", "p", true), false},
		{"model not found", NewProviderError(ErrCodeModelNotFound, "", "p", false), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.err.ShouldAutoRetry())
		})
	}
}
