package anythingllm

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/archive-ocr-pipeline/internal/archive"
)

func TestUploadDocument(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/api/v1/document/upload", r.URL.Path)
		assert.Equal(t, "Bearer secret", r.Header.Get("Authorization"))

		file, header, err := r.FormFile("file")
		if !assert.NoError(t, err) {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		defer file.Close()
		data, _ := io.ReadAll(file)
		assert.Equal(t, "104-1", header.Filename)
		assert.Equal(t, "text/plain", header.Header.Get("Content-Type"))
		assert.Equal(t, "A\nC\n", string(data))

		_, _ = w.Write([]byte(`{"success":true,"error":null,"documents":[{"id":"d1","location":"custom-documents/104-1-abc.json","title":"104-1"}]}`))
	}))
	defer srv.Close()

	c, err := New(Config{BaseURL: srv.URL + "/", Token: "secret"})
	require.NoError(t, err)
	location, err := c.UploadDocument(context.Background(), "104-1", []byte("A\nC\n"))
	require.NoError(t, err)
	assert.Equal(t, "custom-documents/104-1-abc.json", location)
}

func TestUploadDocumentRejected(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"success":false,"error":"unsupported file","documents":[]}`))
	}))
	defer srv.Close()

	c, err := New(Config{BaseURL: srv.URL})
	require.NoError(t, err)
	_, err = c.UploadDocument(context.Background(), "x", []byte("x"))
	require.ErrorContains(t, err, "unsupported file")
	assert.NotErrorIs(t, err, archive.ErrTransient)
}

func TestUploadDocumentServerErrorIsTransient(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "bad gateway", http.StatusBadGateway)
	}))
	defer srv.Close()

	c, err := New(Config{BaseURL: srv.URL})
	require.NoError(t, err)
	_, err = c.UploadDocument(context.Background(), "x", []byte("x"))
	require.ErrorIs(t, err, archive.ErrTransient)
	assert.Contains(t, err.Error(), "status 502")
}

func TestUploadDocumentUnauthorized(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "invalid api key", http.StatusForbidden)
	}))
	defer srv.Close()

	c, err := New(Config{BaseURL: srv.URL, Token: "wrong"})
	require.NoError(t, err)
	_, err = c.UploadDocument(context.Background(), "x", []byte("x"))
	require.Error(t, err)
	assert.NotErrorIs(t, err, archive.ErrTransient)
}

func TestUpdateEmbeddings(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/v1/workspace/jfk-files/update-embeddings", r.URL.Path)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		var body map[string][]string
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, []string{"custom-documents/a.json"}, body["adds"])
		assert.Equal(t, []string{}, body["deletes"])
		_, _ = w.Write([]byte(`{"workspace":{"slug":"jfk-files"}}`))
	}))
	defer srv.Close()

	c, err := New(Config{BaseURL: srv.URL})
	require.NoError(t, err)
	require.NoError(t, c.UpdateEmbeddings(context.Background(), "jfk-files", []string{"custom-documents/a.json"}, nil))
	require.Error(t, c.UpdateEmbeddings(context.Background(), "", nil, nil))
}

func TestNewRequiresBaseURL(t *testing.T) {
	t.Parallel()

	_, err := New(Config{})
	require.Error(t, err)
}
