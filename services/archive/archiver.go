package archive

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/klauspost/compress/zstd"

	gos3 "tradeforge/pkg/s3"
	"tradeforge/services/lifecycle"
)

const presignTTL = 15 * time.Minute

// Archiver exports a concluded run's audit trail to object storage as a
// zstd-compressed JSON document.
type Archiver struct {
	engine *lifecycle.Engine
	s3     *gos3.Client
	bucket string
}

// Export describes one uploaded archive.
type Export struct {
	RunID       uuid.UUID `json:"run_id"`
	Key         string    `json:"key"`
	DownloadURL string    `json:"download_url"`
	EventCount  int       `json:"event_count"`
	SizeBytes   int       `json:"size_bytes"`
}

// document is the archived payload.
type document struct {
	Run        lifecycle.Run     `json:"run"`
	Events     []lifecycle.Event `json:"events"`
	ArchivedAt time.Time         `json:"archived_at"`
}

// New creates an Archiver writing into the given bucket.
func New(engine *lifecycle.Engine, client *gos3.Client, bucket string) (*Archiver, error) {
	if engine == nil {
		return nil, errors.New("engine is required")
	}
	if client == nil {
		return nil, errors.New("s3 client is required")
	}
	if bucket == "" {
		return nil, errors.New("bucket is required")
	}
	return &Archiver{engine: engine, s3: client, bucket: bucket}, nil
}

// ExportRun uploads the full event history of a terminal run. Archiving an
// active run is rejected; its history is still growing.
func (a *Archiver) ExportRun(ctx context.Context, runID uuid.UUID) (Export, error) {
	run, err := a.engine.GetRun(ctx, runID)
	if err != nil {
		return Export{}, err
	}
	if !lifecycle.IsTerminal(run.State) {
		return Export{}, &lifecycle.ConflictError{Reason: "run is not in a terminal state: " + string(run.State)}
	}

	events, err := a.collectEvents(ctx, runID)
	if err != nil {
		return Export{}, err
	}

	doc := document{Run: run, Events: events, ArchivedAt: time.Now().UTC()}
	raw, err := json.Marshal(doc)
	if err != nil {
		return Export{}, err
	}

	compressed, err := compress(raw)
	if err != nil {
		return Export{}, fmt.Errorf("compress archive: %w", err)
	}

	key := fmt.Sprintf("runs/%s/events.json.zst", runID)
	if err := a.s3.PutBytes(ctx, a.bucket, key, compressed, "application/zstd"); err != nil {
		return Export{}, fmt.Errorf("upload archive: %w", err)
	}

	url, err := a.s3.PresignGet(ctx, a.bucket, key, presignTTL)
	if err != nil {
		return Export{}, fmt.Errorf("presign archive: %w", err)
	}

	return Export{
		RunID:       runID,
		Key:         key,
		DownloadURL: url,
		EventCount:  len(events),
		SizeBytes:   len(compressed),
	}, nil
}

// collectEvents pages through the event query until exhausted.
func (a *Archiver) collectEvents(ctx context.Context, runID uuid.UUID) ([]lifecycle.Event, error) {
	const page = 500

	var all []lifecycle.Event
	var after *time.Time
	for {
		batch, err := a.engine.ListEvents(ctx, runID, after, page)
		if err != nil {
			return nil, err
		}
		all = append(all, batch...)
		if len(batch) < page {
			return all, nil
		}
		last := batch[len(batch)-1].TS
		after = &last
	}
}

func compress(data []byte) ([]byte, error) {
	enc, err := zstd.NewWriter(nil)
	if err != nil {
		return nil, err
	}
	defer enc.Close()
	return enc.EncodeAll(data, nil), nil
}
