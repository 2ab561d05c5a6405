package queue

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/dunamismax/pixelpress/internal/domain"
	"github.com/hibiken/asynq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCompressTaskRoundTrip(t *testing.T) {
	payload := CompressPayload{
		RequestID:   "req-123",
		Params:      domain.Params{Quality: 60, Format: domain.FormatPNG, MaxWidth: 640, Filter: domain.FilterNone},
		RequestedAt: time.Now().UTC().Truncate(time.Second),
	}

	task, err := NewCompressTask(payload)
	require.NoError(t, err)
	assert.Equal(t, TypeCompressBatch, task.Type())

	parsed, err := ParseCompressPayload(task)
	require.NoError(t, err)
	assert.Equal(t, payload.RequestID, parsed.RequestID)
	assert.Equal(t, payload.Params, parsed.Params)
	assert.True(t, payload.RequestedAt.Equal(parsed.RequestedAt))
}

func TestParseCompressPayloadRejectsGarbage(t *testing.T) {
	_, err := ParseCompressPayload(asynq.NewTask(TypeCompressBatch, []byte("{")))
	assert.Error(t, err)
}

func TestClientEnqueuesOnNamedQueue(t *testing.T) {
	mr := miniredis.RunT(t)
	client := NewClient(asynq.RedisClientOpt{Addr: mr.Addr()}, "images")
	t.Cleanup(func() { _ = client.Close() })

	info, err := client.EnqueueCompress(context.Background(), CompressPayload{
		RequestID: "req-1",
		Params:    domain.DefaultParams(),
	})
	require.NoError(t, err)

	assert.Equal(t, "images", info.Queue)
	assert.Equal(t, TypeCompressBatch, info.Type)
	assert.Equal(t, 5, info.MaxRetry)
	assert.Equal(t, "images", client.Queue())
	assert.Equal(t, "req-1", info.ID)

	_, err = client.EnqueueCompress(context.Background(), CompressPayload{RequestID: "req-1", Params: domain.DefaultParams()})
	assert.ErrorIs(t, err, asynq.ErrTaskIDConflict)
}
