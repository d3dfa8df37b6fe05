package worker

import "github.com/google/uuid"

// signalEvent is the wire shape of a trading signal consumed from the bus.
type signalEvent struct {
	RunID    uuid.UUID      `json:"run_id"`
	IntentID string         `json:"intent_id"`
	Type     string         `json:"type"`
	Side     string         `json:"side"`
	Qty      float64        `json:"qty"`
	Price    *float64       `json:"price"`
	Meta     map[string]any `json:"meta"`
}

// runLifecycleEvent is published on run start and finish.
type runLifecycleEvent struct {
	RunID     uuid.UUID `json:"run_id"`
	BotID     uuid.UUID `json:"bot_id"`
	State     string    `json:"state"`
	ErrorCode *string   `json:"error_code,omitempty"`
}
