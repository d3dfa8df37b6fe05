package worker

import (
	"time"

	"github.com/google/uuid"
)

// runModel is the worker's narrow view of the bot_runs table, used for
// sweep queries and lease renewal only. State transitions never go through
// it; they funnel through the lifecycle engine.
type runModel struct {
	ID         uuid.UUID  `gorm:"type:uuid;primaryKey"`
	BotID      uuid.UUID  `gorm:"type:uuid"`
	State      string     `gorm:"type:text"`
	LeaseOwner *string    `gorm:"type:text"`
	LeaseUntil *time.Time `gorm:"type:timestamptz"`
	StartedAt  *time.Time `gorm:"type:timestamptz"`
	CreatedAt  time.Time  `gorm:"type:timestamptz"`
	UpdatedAt  time.Time  `gorm:"type:timestamptz"`
}

func (runModel) TableName() string { return "bot_runs" }
