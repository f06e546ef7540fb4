// Package archive moves expired journal events into a blob store as gzipped
// JSON lines before they are deleted from the journal.
package archive

import (
	"bufio"
	"bytes"
	"compress/gzip"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/rmax-ai/transformer-puzzle/pkg/blob"
	"github.com/rmax-ai/transformer-puzzle/pkg/store"
)

const (
	DefaultBatchSize = 500
	Prefix           = "events/"
)

// Journal is the part of the event store the archiver drains.
type Journal interface {
	ReadExpiredEvents(ctx context.Context, cutoff time.Time, limit int) ([]*store.Event, error)
	DeleteEvents(ctx context.Context, ids []store.EventID) error
}

type Archiver struct {
	journal   Journal
	blobs     blob.Store
	batchSize int
	logger    *slog.Logger
	now       func() time.Time
}

type Option func(*Archiver)

func WithBatchSize(n int) Option {
	return func(a *Archiver) {
		if n > 0 {
			a.batchSize = n
		}
	}
}

func WithLogger(l *slog.Logger) Option {
	return func(a *Archiver) { a.logger = l }
}

func WithClock(now func() time.Time) Option {
	return func(a *Archiver) { a.now = now }
}

func New(journal Journal, blobs blob.Store, opts ...Option) *Archiver {
	a := &Archiver{
		journal:   journal,
		blobs:     blobs,
		batchSize: DefaultBatchSize,
		logger:    slog.Default(),
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Archive uploads and deletes every event ingested more than retention ago,
// one batch per blob. An event is only deleted after its batch is stored.
func (a *Archiver) Archive(ctx context.Context, retention time.Duration) (int64, error) {
	if retention <= 0 {
		return 0, fmt.Errorf("retention must be positive")
	}
	cutoff := a.now().UTC().Add(-retention)

	var total int64
	for {
		n, err := a.archiveBatch(ctx, cutoff)
		total += int64(n)
		if err != nil {
			return total, err
		}
		if n < a.batchSize {
			return total, nil
		}
	}
}

func (a *Archiver) archiveBatch(ctx context.Context, cutoff time.Time) (int, error) {
	events, err := a.journal.ReadExpiredEvents(ctx, cutoff, a.batchSize)
	if err != nil {
		return 0, err
	}
	if len(events) == 0 {
		return 0, nil
	}

	var buf bytes.Buffer
	gz := gzip.NewWriter(&buf)
	enc := json.NewEncoder(gz)
	for _, evt := range events {
		if err := enc.Encode(evt); err != nil {
			gz.Close()
			return 0, fmt.Errorf("failed to encode event %s: %w", evt.EventID, err)
		}
	}
	if err := gz.Close(); err != nil {
		return 0, fmt.Errorf("failed to compress archive: %w", err)
	}

	key := Key(events[0].TsIngest, events[len(events)-1].TsIngest)
	if err := a.blobs.Put(ctx, key, &buf); err != nil {
		return 0, fmt.Errorf("failed to upload archive: %w", err)
	}

	ids := make([]store.EventID, len(events))
	for i, evt := range events {
		ids[i] = evt.EventID
	}
	if err := a.journal.DeleteEvents(ctx, ids); err != nil {
		return 0, fmt.Errorf("failed to delete archived events: %w", err)
	}

	a.logger.Info("events_archived", "key", key, "count", len(events))
	return len(events), nil
}

// Key names a batch: events/YYYY/MM/DD/<first>_<last>_<uuid>.jsonl.gz, dated
// by the first event's ingest time.
func Key(first, last time.Time) string {
	first = first.UTC()
	return fmt.Sprintf("%s%04d/%02d/%02d/%d_%d_%s.jsonl.gz", Prefix,
		first.Year(), first.Month(), first.Day(),
		first.Unix(), last.UTC().Unix(), uuid.NewString())
}

// List returns the archive keys, oldest day first.
func List(ctx context.Context, blobs blob.Store) ([]string, error) {
	return blobs.List(ctx, Prefix)
}

// Read decodes one archived batch.
func Read(ctx context.Context, blobs blob.Store, key string) ([]*store.Event, error) {
	rc, err := blobs.Get(ctx, key)
	if err != nil {
		return nil, err
	}
	defer rc.Close()

	gz, err := gzip.NewReader(bufio.NewReader(rc))
	if err != nil {
		return nil, fmt.Errorf("archive %s: %w", key, err)
	}
	defer gz.Close()

	var events []*store.Event
	dec := json.NewDecoder(gz)
	for {
		var evt store.Event
		if err := dec.Decode(&evt); err == io.EOF {
			return events, nil
		} else if err != nil {
			return nil, fmt.Errorf("archive %s: %w", key, err)
		}
		events = append(events, &evt)
	}
}
