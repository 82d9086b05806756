package gcs

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
	"google.golang.org/api/option"

	"github.com/angelmondragon/orderflow-backend/pkg/config"
)

type fakeGCS struct {
	mu      sync.Mutex
	uploads []string
}

func (f *fakeGCS) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	switch r.Method {
	case http.MethodGet:
		_ = json.NewEncoder(w).Encode(map[string]string{"name": "docs-bucket"})
	case http.MethodPost:
		body, _ := io.ReadAll(r.Body)
		f.mu.Lock()
		f.uploads = append(f.uploads, string(body))
		f.mu.Unlock()
		_ = json.NewEncoder(w).Encode(map[string]string{"name": "documents/invoice.html", "bucket": "docs-bucket"})
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

func newTestClient(t *testing.T, fake *fakeGCS) *Client {
	t.Helper()
	srv := httptest.NewServer(fake)
	t.Cleanup(srv.Close)

	client, err := NewClient(context.Background(),
		config.GCSConfig{BucketName: "docs-bucket", PublicBaseURL: "https://cdn.example.com/"},
		config.GCPConfig{},
		nil,
		option.WithEndpoint(srv.URL+"/storage/v1/"),
		option.WithoutAuthentication(),
		option.WithHTTPClient(srv.Client()),
	)
	require.NoError(t, err)
	return client
}

func TestUploadReturnsPublicURL(t *testing.T) {
	fake := &fakeGCS{}
	client := newTestClient(t, fake)

	url, err := client.Upload(context.Background(), "documents/invoice.html", "text/html", strings.NewReader("<html>invoice</html>"))
	require.NoError(t, err)
	require.Equal(t, "https://cdn.example.com/docs-bucket/documents/invoice.html", url)
	require.Len(t, fake.uploads, 1)
	require.Contains(t, fake.uploads[0], "<html>invoice</html>")
}

func TestUploadRequiresObjectName(t *testing.T) {
	client := newTestClient(t, &fakeGCS{})
	_, err := client.Upload(context.Background(), "  ", "text/html", strings.NewReader("x"))
	require.Error(t, err)
}

func TestNewClientRequiresBucket(t *testing.T) {
	_, err := NewClient(context.Background(), config.GCSConfig{}, config.GCPConfig{}, nil)
	require.Error(t, err)
}

func TestPublicURLEscapesSegments(t *testing.T) {
	client := &Client{defaultBucket: "b"}
	require.Equal(t, "https://storage.googleapis.com/b/docs/a%20b.html", client.PublicURL("docs/a b.html"))
}

func TestNilClient(t *testing.T) {
	var client *Client
	require.Error(t, client.Ping(context.Background()))
	_, err := client.Upload(context.Background(), "x", "text/html", strings.NewReader(""))
	require.Error(t, err)
	require.Empty(t, client.DefaultBucket())
}
