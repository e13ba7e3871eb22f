package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestNew(t *testing.T) {
	n := New(SeveritySuccess, "Purchase successful! Downloading contract...", 7)

	assert.NotEmpty(t, n.ID)
	assert.Equal(t, SeveritySuccess, n.Severity)
	assert.Equal(t, uint64(7), n.TokenID)
	assert.WithinDuration(t, time.Now().UTC(), n.CreatedAt, time.Second)

	// every notification gets its own ID
	assert.NotEqual(t, n.ID, New(SeverityInfo, "m", 1).ID)
}

type recordingNotifier struct {
	got []Notification
	err error
}

func (r *recordingNotifier) Notify(_ context.Context, n Notification) error {
	r.got = append(r.got, n)
	return r.err
}

func TestMultiNotifier_FanOut(t *testing.T) {
	a := &recordingNotifier{}
	b := &recordingNotifier{err: fmt.Errorf("connection refused")}
	c := &recordingNotifier{}

	m := NewMultiNotifier(zap.NewNop(), a, b, c)
	n := New(SeverityInfo, "Processing your purchase...", 3)
	require.NoError(t, m.Notify(context.Background(), n))

	// failure in one sink does not stop the others
	assert.Len(t, a.got, 1)
	assert.Len(t, b.got, 1)
	assert.Len(t, c.got, 1)
	assert.Equal(t, n.ID, c.got[0].ID)
}

func TestLogNotifier(t *testing.T) {
	l := NewLogNotifier(zap.NewNop())
	assert.NoError(t, l.Notify(context.Background(), New(SeverityError, "Transaction failed. Please try again.", 1)))
}

func TestWebhookNotifier(t *testing.T) {
	var got Notification
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.WriteHeader(http.StatusAccepted)
	}))
	defer server.Close()

	wh, err := NewWebhookNotifier(server.URL, time.Second)
	require.NoError(t, err)

	n := New(SeveritySuccess, "done", 9)
	require.NoError(t, wh.Notify(context.Background(), n))
	assert.Equal(t, n.ID, got.ID)
	assert.Equal(t, uint64(9), got.TokenID)
}

func TestWebhookNotifier_ServerError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer server.Close()

	wh, err := NewWebhookNotifier(server.URL, time.Second)
	require.NoError(t, err)

	err = wh.Notify(context.Background(), New(SeverityInfo, "m", 1))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "status 502")
}

func TestNewWebhookNotifier_EmptyURL(t *testing.T) {
	_, err := NewWebhookNotifier("", time.Second)
	assert.Error(t, err)
}
