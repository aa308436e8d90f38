package gemini

import (
	"context"
	"errors"
	"testing"

	"cloud.google.com/go/vertexai/genai"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/archive-ocr-pipeline/internal/archive"
)

type fakeModel struct {
	resp  *genai.GenerateContentResponse
	err   error
	parts []genai.Part
}

func (f *fakeModel) GenerateContent(_ context.Context, parts ...genai.Part) (*genai.GenerateContentResponse, error) {
	f.parts = parts
	return f.resp, f.err
}

type countingWaiter struct{ keys []string }

func (w *countingWaiter) Wait(_ context.Context, key string) error {
	w.keys = append(w.keys, key)
	return nil
}

func textResponse(parts ...string) *genai.GenerateContentResponse {
	content := &genai.Content{}
	for _, p := range parts {
		content.Parts = append(content.Parts, genai.Text(p))
	}
	return &genai.GenerateContentResponse{
		Candidates: []*genai.Candidate{{Content: content, FinishReason: genai.FinishReasonStop}},
	}
}

func TestTranscribeSendsImageAndPrompt(t *testing.T) {
	t.Parallel()

	model := &fakeModel{resp: textResponse("MEMORANDUM\n", "Page one ")}
	waiter := &countingWaiter{}
	c := newWithModel(model, waiter)

	text, err := c.Transcribe(context.Background(), []byte{0xff, 0xd8}, "image/jpeg")
	require.NoError(t, err)
	assert.Equal(t, "MEMORANDUM\nPage one", text)

	require.Len(t, model.parts, 2)
	blob, ok := model.parts[0].(genai.Blob)
	require.True(t, ok)
	assert.Equal(t, "image/jpeg", blob.MIMEType)
	assert.Equal(t, genai.Text(Prompt), model.parts[1])
	assert.Equal(t, []string{"gemini"}, waiter.keys)
}

func TestTranscribeEmptyResponses(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		name string
		resp *genai.GenerateContentResponse
	}{
		{"nil response", nil},
		{"no candidates", &genai.GenerateContentResponse{}},
		{"blank text", textResponse("  \n")},
		{"recitation", &genai.GenerateContentResponse{Candidates: []*genai.Candidate{{
			FinishReason: genai.FinishReasonRecitation,
			Content:      &genai.Content{Parts: []genai.Part{genai.Text("partial")}},
		}}}},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			c := newWithModel(&fakeModel{resp: tc.resp}, nil)
			_, err := c.Transcribe(context.Background(), nil, "image/jpeg")
			assert.ErrorIs(t, err, archive.ErrEmptyResponse)
		})
	}
}

func TestTranscribeWrapsServiceErrors(t *testing.T) {
	t.Parallel()

	boom := errors.New("rpc error: code = Unavailable")
	c := newWithModel(&fakeModel{err: boom}, nil)
	_, err := c.Transcribe(context.Background(), nil, "image/png")
	require.ErrorIs(t, err, boom)
	assert.NotErrorIs(t, err, archive.ErrEmptyResponse)
}

func TestImageFormat(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "jpeg", imageFormat("image/jpeg"))
	assert.Equal(t, "jpeg", imageFormat("image/jpg"))
	assert.Equal(t, "png", imageFormat("image/png"))
	assert.Equal(t, "jpeg", imageFormat(""))
}

func TestNewRequiresProject(t *testing.T) {
	t.Parallel()

	_, err := New(context.Background(), Config{Region: "us-central1"}, nil)
	require.Error(t, err)
}
