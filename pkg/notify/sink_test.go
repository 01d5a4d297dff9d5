package notify

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTelegramDeliver(t *testing.T) {
	var gotPath string
	var gotForm map[string]string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		assert.NoError(t, r.ParseForm())
		gotForm = map[string]string{
			"chat_id":    r.PostForm.Get("chat_id"),
			"text":       r.PostForm.Get("text"),
			"parse_mode": r.PostForm.Get("parse_mode"),
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"ok":true,"result":{}}`))
	}))
	defer srv.Close()

	tg := &Telegram{Token: "123:abc", ChatID: "42", APIURL: srv.URL, Client: srv.Client()}
	require.NoError(t, tg.Deliver(context.Background(), "hello *world*"))

	assert.Equal(t, "/bot123:abc/sendMessage", gotPath)
	assert.Equal(t, map[string]string{
		"chat_id":    "42",
		"text":       "hello *world*",
		"parse_mode": "Markdown",
	}, gotForm)
}

func TestTelegramAPIError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`{"ok":false,"description":"Bad Request: chat not found"}`))
	}))
	defer srv.Close()

	tg := &Telegram{Token: "t", ChatID: "c", APIURL: srv.URL, Client: srv.Client()}
	err := tg.Deliver(context.Background(), "x")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "chat not found")
}

func TestTelegramNonJSONError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "gateway down", http.StatusBadGateway)
	}))
	defer srv.Close()

	tg := &Telegram{Token: "t", ChatID: "c", APIURL: srv.URL, Client: srv.Client()}
	err := tg.Deliver(context.Background(), "x")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "502")
}

func TestTelegramMissingCredentials(t *testing.T) {
	err := (&Telegram{ChatID: "c"}).Deliver(context.Background(), "x")
	assert.ErrorIs(t, err, ErrMissingCredentials)
	assert.Contains(t, err.Error(), "token")

	err = (&Telegram{Token: "t"}).Deliver(context.Background(), "x")
	assert.ErrorIs(t, err, ErrMissingCredentials)
	assert.Contains(t, err.Error(), "chat id")
}

func TestTelegramErrorHidesToken(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	tg := &Telegram{Token: "secret-token", ChatID: "c", APIURL: url}
	err := tg.Deliver(context.Background(), "x")
	require.Error(t, err)
	assert.NotContains(t, err.Error(), "secret-token")
}

func TestConsoleDeliver(t *testing.T) {
	var buf bytes.Buffer
	c := NewConsole(&buf)

	require.NoError(t, c.Deliver(context.Background(), "✅ up\n\n❎ down"))

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 2)
	assert.Contains(t, lines[0], "✅ up")
	assert.Contains(t, lines[1], "❎ down")
}

func TestSinkFunc(t *testing.T) {
	var got string
	s := SinkFunc(func(_ context.Context, text string) error {
		got = text
		return nil
	})
	require.NoError(t, s.Deliver(context.Background(), "hi"))
	assert.Equal(t, "hi", got)
}
