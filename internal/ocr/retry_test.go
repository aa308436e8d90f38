package ocr

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/archive-ocr-pipeline/internal/archive"
)

type scriptedEngine struct {
	results []error
	text    string
	calls   int
}

func (s *scriptedEngine) Transcribe(context.Context, []byte, string) (string, error) {
	i := s.calls
	s.calls++
	if i < len(s.results) && s.results[i] != nil {
		return "", s.results[i]
	}
	return s.text, nil
}

func newTestRetrying(inner archive.Transcriber, attempts int) (*Retrying, *[]time.Duration) {
	r := NewRetrying(inner, RetryConfig{Engine: "test", MaxAttempts: attempts, Base: time.Second}, nil)
	var slept []time.Duration
	r.sleep = func(_ context.Context, d time.Duration) error {
		slept = append(slept, d)
		return nil
	}
	return r, &slept
}

func TestRetryingSucceedsAfterTransientFailures(t *testing.T) {
	t.Parallel()

	boom := errors.New("503 unavailable")
	engine := &scriptedEngine{results: []error{boom, boom}, text: "page text"}
	r, slept := newTestRetrying(engine, 3)

	text, err := r.Transcribe(context.Background(), []byte("img"), "image/jpeg")
	require.NoError(t, err)
	assert.Equal(t, "page text", text)
	assert.Equal(t, 3, engine.calls)
	assert.Equal(t, []time.Duration{time.Second, 2 * time.Second}, *slept)
}

func TestRetryingStopsAtBound(t *testing.T) {
	t.Parallel()

	boom := errors.New("deadline exceeded upstream")
	engine := &scriptedEngine{results: []error{boom, boom, boom, boom}}
	r, slept := newTestRetrying(engine, 3)

	_, err := r.Transcribe(context.Background(), nil, "image/jpeg")
	require.Error(t, err)
	assert.ErrorIs(t, err, archive.ErrTransient)
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, 3, engine.calls)
	assert.Len(t, *slept, 2)
	assert.Equal(t, archive.ClassTransient, archive.Classify(err))
}

func TestRetryingNeverRetriesEmptyResponse(t *testing.T) {
	t.Parallel()

	engine := &scriptedEngine{results: []error{archive.ErrEmptyResponse}}
	r, slept := newTestRetrying(engine, 3)

	_, err := r.Transcribe(context.Background(), nil, "image/jpeg")
	require.ErrorIs(t, err, archive.ErrEmptyResponse)
	assert.Equal(t, 1, engine.calls)
	assert.Empty(t, *slept)
}

func TestRetryingStopsOnCancellation(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	engine := &scriptedEngine{results: []error{context.Canceled}}
	r, _ := newTestRetrying(engine, 3)

	_, err := r.Transcribe(ctx, nil, "image/jpeg")
	require.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, engine.calls)
}

func TestSleepHonoursContext(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	start := time.Now()
	require.ErrorIs(t, Sleep(ctx, time.Minute), context.Canceled)
	assert.Less(t, time.Since(start), time.Second)

	require.NoError(t, Sleep(context.Background(), time.Millisecond))
}
