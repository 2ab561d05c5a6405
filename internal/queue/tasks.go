package queue

import (
	"fmt"
	"time"

	"github.com/dunamismax/pixelpress/internal/domain"
	"github.com/hibiken/asynq"
	jsoniter "github.com/json-iterator/go"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

const TypeCompressBatch = "batch:compress"

// CompressPayload asks a worker to run one batch over the record store with
// the parameters captured at enqueue time.
type CompressPayload struct {
	RequestID   string        `json:"request_id"`
	Params      domain.Params `json:"params"`
	RequestedAt time.Time     `json:"requested_at"`
}

func NewCompressTask(payload CompressPayload) (*asynq.Task, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal compress payload: %w", err)
	}
	return asynq.NewTask(TypeCompressBatch, body), nil
}

func ParseCompressPayload(task *asynq.Task) (CompressPayload, error) {
	var payload CompressPayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		return CompressPayload{}, fmt.Errorf("unmarshal compress payload: %w", err)
	}
	return payload, nil
}
