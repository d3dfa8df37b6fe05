package migrations

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"
	"github.com/pressly/goose/v3"
	"gorm.io/datatypes"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
	"gorm.io/gorm/schema"
)

func init() {
	goose.AddMigrationContext(upInit, downInit)
}

type Bot struct {
	ID        uuid.UUID `gorm:"type:uuid;primaryKey"`
	Name      string    `gorm:"type:text;not null"`
	Symbol    string    `gorm:"type:text;not null"`
	CreatedAt time.Time `gorm:"type:timestamptz;not null;default:now();autoCreateTime"`
	UpdatedAt time.Time `gorm:"type:timestamptz;not null;default:now();autoUpdateTime"`
}

type BotRun struct {
	ID         uuid.UUID  `gorm:"type:uuid;primaryKey"`
	BotID      uuid.UUID  `gorm:"type:uuid;not null;index"`
	Symbol     string     `gorm:"type:text;not null"`
	State      string     `gorm:"type:text;not null;index"`
	LeaseOwner *string    `gorm:"type:text"`
	LeaseUntil *time.Time `gorm:"type:timestamptz"`
	StartedAt  *time.Time `gorm:"type:timestamptz"`
	StoppedAt  *time.Time `gorm:"type:timestamptz"`
	ErrorCode  *string    `gorm:"type:text"`
	CreatedAt  time.Time  `gorm:"type:timestamptz;not null;default:now();autoCreateTime"`
	UpdatedAt  time.Time  `gorm:"type:timestamptz;not null;default:now();autoUpdateTime"`
	Bot        Bot        `gorm:"foreignKey:BotID;references:ID;constraint:OnUpdate:CASCADE,OnDelete:RESTRICT"`
}

type BotEvent struct {
	ID       uuid.UUID         `gorm:"type:uuid;primaryKey"`
	BotRunID uuid.UUID         `gorm:"type:uuid;not null;index:idx_bot_events_run_ts,priority:1"`
	TS       time.Time         `gorm:"type:timestamptz;not null;default:now();index:idx_bot_events_run_ts,priority:2"`
	Type     string            `gorm:"type:text;not null"`
	Payload  datatypes.JSONMap `gorm:"type:jsonb"`
	BotRun   BotRun            `gorm:"foreignKey:BotRunID;references:ID;constraint:OnUpdate:CASCADE,OnDelete:RESTRICT"`
}

type BotIntent struct {
	ID          uuid.UUID         `gorm:"type:uuid;primaryKey"`
	BotRunID    uuid.UUID         `gorm:"type:uuid;not null;uniqueIndex:idx_bot_intents_run_intent,priority:1"`
	IntentID    string            `gorm:"type:text;not null;uniqueIndex:idx_bot_intents_run_intent,priority:2"`
	OrderLinkID uuid.UUID         `gorm:"type:uuid;not null;uniqueIndex"`
	Type        string            `gorm:"type:text;not null"`
	Side        string            `gorm:"type:text;not null"`
	Qty         float64           `gorm:"type:double precision;not null"`
	Price       *float64          `gorm:"type:double precision"`
	State       string            `gorm:"type:text;not null"`
	OrderID     *string           `gorm:"type:text"`
	Meta        datatypes.JSONMap `gorm:"type:jsonb"`
	CreatedAt   time.Time         `gorm:"type:timestamptz;not null;default:now();autoCreateTime"`
	UpdatedAt   time.Time         `gorm:"type:timestamptz;not null;default:now();autoUpdateTime"`
	BotRun      BotRun            `gorm:"foreignKey:BotRunID;references:ID;constraint:OnUpdate:CASCADE,OnDelete:RESTRICT"`
}

func upInit(ctx context.Context, tx *sql.Tx) error {
	gormDB, err := gorm.Open(postgres.New(postgres.Config{Conn: tx, PreferSimpleProtocol: true}), &gorm.Config{
		NamingStrategy: schema.NamingStrategy{SingularTable: false},
		Logger:         logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return err
	}

	if err := gormDB.WithContext(ctx).AutoMigrate(
		&Bot{},
		&BotRun{},
		&BotEvent{},
		&BotIntent{},
	); err != nil {
		return err
	}

	m := gormDB.WithContext(ctx).Migrator()
	if err := m.CreateConstraint(&BotRun{}, "Bot"); err != nil {
		return err
	}
	if err := m.CreateConstraint(&BotEvent{}, "BotRun"); err != nil {
		return err
	}
	if err := m.CreateConstraint(&BotIntent{}, "BotRun"); err != nil {
		return err
	}

	return nil
}

func downInit(ctx context.Context, tx *sql.Tx) error {
	gormDB, err := gorm.Open(postgres.New(postgres.Config{Conn: tx, PreferSimpleProtocol: true}), &gorm.Config{
		NamingStrategy: schema.NamingStrategy{SingularTable: false},
		Logger:         logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return err
	}

	if err := gormDB.WithContext(ctx).Migrator().DropTable(
		&BotIntent{},
		&BotEvent{},
		&BotRun{},
		&Bot{},
	); err != nil {
		return err
	}

	return nil
}
