package collab

import (
	"encoding/json"
	"time"
)

// DocEvent 协作通道产生的事件，投递到 Kafka 供下游
// （审计、活动流、离线索引）消费。按 DocID 作为分区键，
// 保证同一文档的事件有序。
type DocEvent struct {
	EventType  string          `json:"eventType"` // "DELTA_BROADCAST" / "DOC_SAVED"
	DocID      string          `json:"docId"`
	AuthorID   uint64          `json:"authorId"`
	ConnID     string          `json:"connId,omitempty"`
	Delta      json.RawMessage `json:"delta,omitempty"`
	OccurredAt time.Time       `json:"occurredAt"`
}

const (
	EventDeltaBroadcast = "DELTA_BROADCAST"
	EventDocSaved       = "DOC_SAVED"
)
