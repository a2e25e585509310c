package images

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"

	"github.com/stretchr/testify/assert"

	"NewsRelay/internal/config"
)

func TestUsable(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodHead, r.Method)
		switch r.URL.Path {
		case "/ok.jpg":
			w.Header().Set("Content-Type", "image/jpeg")
			w.Header().Set("Content-Length", "2048")
		case "/huge.jpg":
			w.Header().Set("Content-Type", "image/jpeg")
			w.Header().Set("Content-Length", strconv.Itoa(6<<20))
		case "/page.html":
			w.Header().Set("Content-Type", "text/html")
		default:
			w.WriteHeader(http.StatusNotFound)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	c := NewChecker(config.ImagesConfig{}, nil)
	ctx := context.Background()

	assert.True(t, c.Usable(ctx, srv.URL+"/ok.jpg"))
	assert.False(t, c.Usable(ctx, srv.URL+"/huge.jpg"))
	assert.False(t, c.Usable(ctx, srv.URL+"/page.html"))
	assert.False(t, c.Usable(ctx, srv.URL+"/missing.jpg"))
	assert.False(t, c.Usable(ctx, ""))
	assert.False(t, c.Usable(ctx, "ftp://example.com/a.jpg"))
}
