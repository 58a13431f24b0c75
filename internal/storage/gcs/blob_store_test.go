package gcs

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"cloud.google.com/go/storage"
	"github.com/stretchr/testify/require"
	"google.golang.org/api/option"
)

func newTestClient(t *testing.T, handler http.Handler) *storage.Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	client, err := storage.NewClient(context.Background(),
		option.WithEndpoint(srv.URL), option.WithoutAuthentication())
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })
	return client
}

func TestPutObjectUploads(t *testing.T) {
	t.Parallel()

	var (
		mu   sync.Mutex
		name string
		body string
	)
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		data, _ := io.ReadAll(r.Body)
		mu.Lock()
		name = r.URL.Query().Get("name")
		body = string(data)
		mu.Unlock()
		fmt.Fprintln(w, `{"bucket":"pages","name":"Stock/M.1.html"}`)
	}))

	store, err := New(client, Config{Bucket: "pages"})
	require.NoError(t, err)

	uri, err := store.PutObject(context.Background(), "Stock/M.1.html", "text/html", strings.NewReader("<html>page</html>"))
	require.NoError(t, err)
	require.Equal(t, "gs://pages/Stock/M.1.html", uri)

	mu.Lock()
	defer mu.Unlock()
	require.Equal(t, "Stock/M.1.html", name)
	require.Contains(t, body, "<html>page</html>")
}

func TestPutObjectServerError(t *testing.T) {
	t.Parallel()

	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	}))
	store, err := New(client, Config{Bucket: "pages"})
	require.NoError(t, err)

	_, err = store.PutObject(context.Background(), "Stock/M.1.html", "text/html", strings.NewReader("x"))
	require.Error(t, err)
}

func TestNewValidates(t *testing.T) {
	t.Parallel()

	_, err := New(nil, Config{Bucket: "b"})
	require.Error(t, err)

	client := newTestClient(t, http.NotFoundHandler())
	_, err = New(client, Config{})
	require.Error(t, err)

	store, err := New(client, Config{Bucket: "b"})
	require.NoError(t, err)
	_, err = store.PutObject(context.Background(), " ", "", strings.NewReader(""))
	require.Error(t, err)
}
