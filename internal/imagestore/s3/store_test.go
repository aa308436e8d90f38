package s3

import (
	"context"
	"errors"
	"io"
	"strings"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeUploader struct {
	input *s3.PutObjectInput
	body  string
	out   *manager.UploadOutput
	err   error
}

func (f *fakeUploader) Upload(_ context.Context, input *s3.PutObjectInput, _ ...func(*manager.Uploader)) (*manager.UploadOutput, error) {
	f.input = input
	data, _ := io.ReadAll(input.Body)
	f.body = string(data)
	return f.out, f.err
}

func TestPutObjectUsesLocation(t *testing.T) {
	t.Parallel()

	up := &fakeUploader{out: &manager.UploadOutput{Location: "https://pages.s3.amazonaws.com/a.jpg"}}
	store, err := newStore(up, Config{Bucket: "pages"})
	require.NoError(t, err)

	url, err := store.PutObject(context.Background(), "a.jpg", "image/jpeg", strings.NewReader("jpeg"))
	require.NoError(t, err)
	assert.Equal(t, "https://pages.s3.amazonaws.com/a.jpg", url)
	assert.Equal(t, "pages", aws.ToString(up.input.Bucket))
	assert.Equal(t, "a.jpg", aws.ToString(up.input.Key))
	assert.Equal(t, "image/jpeg", aws.ToString(up.input.ContentType))
	assert.Equal(t, "jpeg", up.body)
}

func TestPutObjectFallbacks(t *testing.T) {
	t.Parallel()

	store, err := newStore(&fakeUploader{out: &manager.UploadOutput{}}, Config{Bucket: "pages"})
	require.NoError(t, err)
	url, err := store.PutObject(context.Background(), "p/a.jpg", "", strings.NewReader("x"))
	require.NoError(t, err)
	assert.Equal(t, "s3://pages/p/a.jpg", url)

	public, err := newStore(&fakeUploader{out: &manager.UploadOutput{Location: "ignored"}},
		Config{Bucket: "pages", PublicBase: "https://cdn.example/"})
	require.NoError(t, err)
	url, err = public.PutObject(context.Background(), "a.jpg", "", strings.NewReader("x"))
	require.NoError(t, err)
	assert.Equal(t, "https://cdn.example/a.jpg", url)
}

func TestPutObjectErrors(t *testing.T) {
	t.Parallel()

	_, err := newStore(nil, Config{Bucket: "b"})
	require.Error(t, err)
	_, err = newStore(&fakeUploader{}, Config{})
	require.Error(t, err)

	boom := errors.New("access denied")
	store, err := newStore(&fakeUploader{err: boom}, Config{Bucket: "b"})
	require.NoError(t, err)
	_, err = store.PutObject(context.Background(), "a.jpg", "", strings.NewReader("x"))
	require.ErrorIs(t, err, boom)
}
