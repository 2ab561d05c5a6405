package webhook

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fastConfig(url string, attempts int) Config {
	return Config{
		URL:            url,
		SigningSecret:  "test-secret",
		Timeout:        2 * time.Second,
		MaxAttempts:    attempts,
		InitialBackoff: time.Millisecond,
		MaxBackoff:     2 * time.Millisecond,
	}
}

func TestNotifySignsEnvelope(t *testing.T) {
	var (
		gotSig  string
		gotTS   string
		gotEvt  string
		gotBody []byte
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotSig = r.Header.Get(HeaderSignature)
		gotTS = r.Header.Get(HeaderTimestamp)
		gotEvt = r.Header.Get(HeaderEvent)
		gotBody, _ = io.ReadAll(r.Body)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	client := NewClient(fastConfig(srv.URL, 1))
	require.True(t, client.Enabled())
	require.NoError(t, client.Notify(context.Background(), "batch.completed", map[string]any{"records": 2}))

	require.NotEmpty(t, gotTS)
	assert.Equal(t, "batch.completed", gotEvt)

	mac := hmac.New(sha256.New, []byte("test-secret"))
	mac.Write([]byte(gotTS + "."))
	mac.Write(gotBody)
	assert.Equal(t, "sha256="+hex.EncodeToString(mac.Sum(nil)), gotSig)

	var got map[string]any
	require.NoError(t, json.Unmarshal(gotBody, &got))
	assert.Equal(t, "batch.completed", got["event"])
	assert.NotEmpty(t, got["sent_at"])
	assert.Equal(t, map[string]any{"records": float64(2)}, got["data"])
}

func TestNotifyRetriesServerErrors(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	require.NoError(t, NewClient(fastConfig(srv.URL, 3)).Notify(context.Background(), "batch.failed", nil))
	assert.Equal(t, int32(3), calls.Load())
}

func TestNotifyGivesUpAfterMaxAttempts(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	err := NewClient(fastConfig(srv.URL, 2)).Notify(context.Background(), "batch.failed", nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "status=500")
	assert.Equal(t, int32(2), calls.Load())
}

func TestNotifyDoesNotRetryClientErrors(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusGone)
	}))
	defer srv.Close()

	err := NewClient(fastConfig(srv.URL, 5)).Notify(context.Background(), "batch.completed", nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "status=410")
	assert.Equal(t, int32(1), calls.Load())
}

func TestNotifyWithoutURLIsNoop(t *testing.T) {
	client := NewClient(Config{})
	assert.False(t, client.Enabled())
	assert.NoError(t, client.Notify(context.Background(), "batch.completed", nil))

	var nilClient *Client
	assert.False(t, nilClient.Enabled())
}
