package services_test

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"libraryhub/internal/core/domain"
	"libraryhub/internal/core/services"
	"libraryhub/internal/pkg/logging"

	jsoniter "github.com/json-iterator/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type failingNotifier struct{ calls int }

func (f *failingNotifier) Notify(context.Context, domain.Notification) error {
	f.calls++
	return errors.New("smtp down")
}

func TestWebhookNotifierSend(t *testing.T) {
	received := make(chan domain.Notification, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		body, _ := io.ReadAll(r.Body)
		var n domain.Notification
		assert.NoError(t, jsoniter.Unmarshal(body, &n))
		received <- n
		w.WriteHeader(http.StatusAccepted)
	}))
	defer srv.Close()

	notifier := services.NewWebhookNotifier(srv.URL, logging.NewNop())
	require.True(t, notifier.IsEnabled())

	note := domain.Notification{ID: "n-1", Recipient: "a@example.test", Subject: "ready", ReferenceID: 7}
	require.NoError(t, notifier.Send(note))

	select {
	case got := <-received:
		assert.Equal(t, "n-1", got.ID)
		assert.Equal(t, uint(7), got.ReferenceID)
	case <-time.After(time.Second):
		t.Fatal("webhook not called")
	}
}

func TestWebhookNotifierReportsStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	err := services.NewWebhookNotifier(srv.URL, logging.NewNop()).Send(domain.Notification{ID: "n-2"})
	assert.Error(t, err)

	disabled := services.NewWebhookNotifier("", logging.NewNop())
	assert.False(t, disabled.IsEnabled())
	assert.NoError(t, disabled.Notify(context.Background(), domain.Notification{}))
}

func TestMultiNotifierCallsEveryNotifier(t *testing.T) {
	failing := &failingNotifier{}
	logged := services.NewLogNotifier(logging.NewNop())
	multi := services.MultiNotifier{failing, logged, failing}

	err := multi.Notify(context.Background(), domain.Notification{ID: "n-3"})
	assert.EqualError(t, err, "smtp down")
	assert.Equal(t, 2, failing.calls)
}
