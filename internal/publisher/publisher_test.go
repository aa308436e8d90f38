package publisher

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/JakeFAU/archive-ocr-pipeline/internal/archive"
	"github.com/JakeFAU/archive-ocr-pipeline/internal/catalog/memory"
	notifymemory "github.com/JakeFAU/archive-ocr-pipeline/internal/notify/memory"
)

var testNow = time.Date(2025, 3, 18, 12, 0, 0, 0, time.UTC)

type fixedClock struct{}

func (fixedClock) Now() time.Time { return testNow }

type fakeIndexer struct {
	mu         sync.Mutex
	uploads    []string
	embeddings [][]string
	uploadErr  error
	embedErr   error
}

func (f *fakeIndexer) UploadDocument(_ context.Context, name string, text []byte) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.uploadErr != nil {
		return "", f.uploadErr
	}
	f.uploads = append(f.uploads, name+":"+string(text))
	return "custom-documents/" + name + ".json", nil
}

func (f *fakeIndexer) UpdateEmbeddings(_ context.Context, workspace string, adds, deletes []string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.embedErr != nil {
		return f.embedErr
	}
	if len(deletes) != 0 {
		return errors.New("unexpected deletes")
	}
	f.embeddings = append(f.embeddings, append([]string{workspace}, adds...))
	return nil
}

type fixture struct {
	cat      *memory.Catalog
	indexer  *fakeIndexer
	notifier *notifymemory.Notifier
	dir      string
	pub      *Publisher
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		cat:      memory.New(),
		indexer:  &fakeIndexer{},
		notifier: notifymemory.New(),
		dir:      t.TempDir(),
	}
	pub, err := New(Config{TranscriptDir: f.dir, Workspace: "jfk"}, f.cat, f.indexer, f.notifier, fixedClock{}, zap.NewNop())
	require.NoError(t, err)
	f.pub = pub
	return f
}

func (f *fixture) addDocument(t *testing.T, number, transcript string) string {
	t.Helper()
	id, err := f.cat.InsertDocument(context.Background(), archive.Document{URL: "https://a/" + number + ".pdf", Number: number})
	require.NoError(t, err)
	if transcript != "" {
		require.NoError(t, os.WriteFile(filepath.Join(f.dir, number+".txt"), []byte(transcript), 0o600))
	}
	return id
}

func (f *fixture) published(t *testing.T, number string) bool {
	t.Helper()
	doc, err := f.cat.FindDocumentByNumber(context.Background(), number)
	require.NoError(t, err)
	return doc.IsPublished()
}

func TestRunPublishesOnce(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	id := f.addDocument(t, "104-1", "A\nC\n")

	stats, err := f.pub.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, Stats{Pending: 1, Published: 1}, stats)
	assert.True(t, f.published(t, "104-1"))
	assert.Equal(t, []string{"104-1:A\nC\n"}, f.indexer.uploads)
	assert.Equal(t, [][]string{{"jfk", "custom-documents/104-1.json"}}, f.indexer.embeddings)

	events := f.notifier.Events()
	require.Len(t, events, 1)
	assert.Equal(t, archive.Event{
		Type:       archive.EventDocumentPublished,
		DocumentID: id,
		Number:     "104-1",
		Location:   "custom-documents/104-1.json",
		At:         testNow,
	}, events[0])

	stats, err = f.pub.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, Stats{}, stats)
	assert.Len(t, f.indexer.uploads, 1, "a published document is never uploaded again")
}

func TestRunSkipsMissingTranscript(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	f.addDocument(t, "104-2", "")

	stats, err := f.pub.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, Stats{Pending: 1, NoTranscript: 1}, stats)
	assert.False(t, f.published(t, "104-2"))
	assert.Empty(t, f.indexer.uploads)
}

func TestFailuresLeaveDocumentUnmarked(t *testing.T) {
	t.Parallel()

	for name, configure := range map[string]func(*fakeIndexer){
		"upload":     func(i *fakeIndexer) { i.uploadErr = archive.ErrTransient },
		"embeddings": func(i *fakeIndexer) { i.embedErr = errors.New("workspace not found") },
	} {
		t.Run(name, func(t *testing.T) {
			t.Parallel()
			f := newFixture(t)
			configure(f.indexer)
			f.addDocument(t, "104-3", "text\n")

			stats, err := f.pub.Run(context.Background())
			require.NoError(t, err)
			assert.Equal(t, 1, stats.Failed)
			assert.False(t, f.published(t, "104-3"))
			assert.Empty(t, f.notifier.Events())
		})
	}
}

func TestNotificationFailureStillMarksPublished(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	f.notifier.FailWith(errors.New("topic gone"))
	f.addDocument(t, "104-4", "x\n")

	stats, err := f.pub.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Published)
	assert.True(t, f.published(t, "104-4"))
}

func TestPublishAlreadyPublishedIsNoop(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	outcome, err := f.pub.Publish(context.Background(), archive.Document{Number: "x", Published: archive.Ptr(true)})
	require.NoError(t, err)
	assert.Equal(t, OutcomePublished, outcome)
	assert.Empty(t, f.indexer.uploads)
}

func TestNewValidates(t *testing.T) {
	t.Parallel()

	_, err := New(Config{TranscriptDir: "d"}, memory.New(), &fakeIndexer{}, nil, fixedClock{}, nil)
	require.Error(t, err, "workspace is required")
	_, err = New(Config{TranscriptDir: "d", Workspace: "w"}, memory.New(), nil, nil, fixedClock{}, nil)
	require.Error(t, err)
}
