package telegram

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNotifierPublishDigest(t *testing.T) {
	t.Parallel()

	var (
		mu    sync.Mutex
		paths []string
		texts []string
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		mu.Lock()
		paths = append(paths, r.URL.Path)
		texts = append(texts, r.PostForm.Get("text"))
		mu.Unlock()
		assert.Equal(t, "-100", r.PostForm.Get("chat_id"))
		assert.Equal(t, "Markdown", r.PostForm.Get("parse_mode"))
		_, _ = w.Write([]byte(`{"ok":true}`))
	}))
	defer srv.Close()

	n := NewNotifier("TOKEN", "-100", WithAPIBase(srv.URL))
	require.NoError(t, n.PublishDigest(context.Background(), "*1 new tariff updates*"))

	assert.Equal(t, []string{"/botTOKEN/sendMessage"}, paths)
	assert.Equal(t, []string{"*1 new tariff updates*"}, texts)
}

func TestNotifierErrorStatus(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"ok":false}`, http.StatusBadRequest)
	}))
	defer srv.Close()

	err := NewNotifier("TOKEN", "1", WithAPIBase(srv.URL)).PublishDigest(context.Background(), "hi")
	assert.ErrorContains(t, err, "telegram error")
}

func TestNotifierMisconfigured(t *testing.T) {
	t.Parallel()

	assert.False(t, NewNotifier("", "1").Configured())
	assert.Error(t, NewNotifier("TOKEN", "").PublishDigest(context.Background(), "hi"))
}

func TestSplitMessage(t *testing.T) {
	t.Parallel()

	assert.Equal(t, []string{"short"}, splitMessage("short", 10))

	parts := splitMessage("aaaa\nbbbb\ncccc\n", 10)
	assert.Equal(t, []string{"aaaa\nbbbb\n", "cccc\n"}, parts)

	long := strings.Repeat("é", 25)
	parts = splitMessage(long, 10)
	require.Len(t, parts, 3)
	assert.Equal(t, long, strings.Join(parts, ""))
}
