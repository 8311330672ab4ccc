package events

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/fystack/lotto-indexer/pkg/common/constant"
	"github.com/fystack/lotto-indexer/pkg/common/types"
	"github.com/fystack/lotto-indexer/pkg/infra"
)

const (
	EventTypeCover = "cover"
	EventTypeError = "error"
)

type IndexerEvent struct {
	Type      string `json:"type"`
	Game      string `json:"game"`
	RunID     string `json:"run_id,omitempty"`
	Data      any    `json:"data"`
	Timestamp int64  `json:"timestamp"`
}

type Emitter interface {
	EmitCoverSet(runID string, set types.CoverSet) error
	EmitError(game string, err error) error
	Emit(event IndexerEvent) error
	Close()
}

type emitter struct {
	queue         infra.MessageQueue
	subjectPrefix string
}

func NewEmitter(queue infra.MessageQueue, subjectPrefix string) Emitter {
	return &emitter{
		queue:         queue,
		subjectPrefix: subjectPrefix,
	}
}

// Subject is <prefix>.cover.<game>.
func Subject(prefix, game string) string {
	return fmt.Sprintf("%s.%s.%s", prefix, constant.CoverSubject, game)
}

// IdempotencyKey dedups redelivery of the same cover set within one run.
func IdempotencyKey(game string, sig types.Signature, runID string) string {
	return fmt.Sprintf("%s:%s:%s", game, sig.Key(), runID)
}

func (e *emitter) EmitCoverSet(runID string, set types.CoverSet) error {
	data, err := json.Marshal(IndexerEvent{
		Type:      EventTypeCover,
		Game:      set.Game,
		RunID:     runID,
		Data:      set,
		Timestamp: time.Now().UTC().Unix(),
	})
	if err != nil {
		return err
	}
	return e.queue.Enqueue(Subject(e.subjectPrefix, set.Game), data, &infra.EnqueueOptions{
		IdempotententKey: IdempotencyKey(set.Game, set.Signature, runID),
	})
}

func (e *emitter) EmitError(game string, err error) error {
	payload := map[string]string{}
	if err != nil {
		payload["message"] = err.Error()
	}
	return e.Emit(IndexerEvent{
		Type:      EventTypeError,
		Game:      game,
		Data:      payload,
		Timestamp: time.Now().UTC().Unix(),
	})
}

func (e *emitter) Emit(event IndexerEvent) error {
	data, err := json.Marshal(event)
	if err != nil {
		return err
	}
	return e.queue.Enqueue(fmt.Sprintf("%s.%s.%s", e.subjectPrefix, event.Type, event.Game), data, nil)
}

func (e *emitter) Close() {
	if e.queue != nil {
		e.queue.Close()
	}
}
