package app

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"google.golang.org/protobuf/proto"

	"github.com/roman-kulish/uxv-edge/internal/storage"
	"github.com/roman-kulish/uxv-edge/internal/wire"
)

// Recorder persists received messages
type Recorder interface {
	// Record stores msg as the seq-th message of its stream. A recorder may
	// buffer the message until the next Flush.
	Record(ctx context.Context, stream string, seq int64, tsNs uint64, msg proto.Message) error

	// Flush writes the buffered messages of stream.
	Flush(ctx context.Context, stream string) error

	// Close flushes every stream and releases the recorder resources.
	Close() error
}

// RecordError reports messages of a stream the recorder could not persist
type RecordError struct {
	Stream string
	Count  int
	Err    error
}

func (e *RecordError) Error() string {
	return fmt.Sprintf("%s: %d record(s) lost: %s", e.Stream, e.Count, e.Err)
}

func (e *RecordError) Unwrap() error {
	return e.Err
}

// WithBatchSize sets the number of records buffered per stream before they are
// written in one transaction
func WithBatchSize(n int) func(*StoreRecorder) {
	return func(r *StoreRecorder) {
		if n > 0 {
			r.batchSize = n
		}
	}
}

// StoreRecorder records messages as JSON rows of one mission
type StoreRecorder struct {
	store     storage.Store
	mission   *storage.Mission
	batchSize int

	mu      sync.Mutex
	pending map[string][]*storage.Record
}

// NewStoreRecorder creates the mission, or resumes it when it exists, and
// returns a recorder writing into it. The recorder owns the store.
func NewStoreRecorder(ctx context.Context, store storage.Store, missionID string, options ...func(*StoreRecorder)) (*StoreRecorder, error) {
	if err := store.CreateMission(ctx, missionID); err != nil {
		return nil, fmt.Errorf("creating mission %s: %w", missionID, err)
	}

	mission, err := store.Mission(ctx, missionID)
	if err != nil {
		return nil, fmt.Errorf("loading mission %s: %w", missionID, err)
	}

	r := StoreRecorder{
		store:     store,
		mission:   mission,
		batchSize: defaultBatchSize,
		pending:   make(map[string][]*storage.Record),
	}

	for _, option := range options {
		option(&r)
	}

	return &r, nil
}

// Mission returns the mission the recorder writes into
func (r *StoreRecorder) Mission() *storage.Mission {
	return r.mission
}

func (r *StoreRecorder) Record(ctx context.Context, stream string, seq int64, tsNs uint64, msg proto.Message) error {
	payload, err := wire.MarshalJSON(msg)
	if err != nil {
		return &RecordError{Stream: stream, Count: 1, Err: fmt.Errorf("encoding record: %w", err)}
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	r.pending[stream] = append(r.pending[stream], &storage.Record{
		MissionID: r.mission.ID,
		Stream:    stream,
		Seq:       seq,
		TsNs:      tsNs,
		Payload:   string(payload),
	})

	if len(r.pending[stream]) < r.batchSize {
		return nil
	}
	return r.flushLocked(ctx, stream)
}

func (r *StoreRecorder) Flush(ctx context.Context, stream string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	return r.flushLocked(ctx, stream)
}

// flushLocked writes the stream buffer; records of a failed batch are dropped.
// Writes hold the lock so batches of one stream commit in arrival order.
func (r *StoreRecorder) flushLocked(ctx context.Context, stream string) error {
	batch := r.pending[stream]
	if len(batch) == 0 {
		return nil
	}
	delete(r.pending, stream)

	var err error
	if len(batch) == 1 {
		rec := batch[0]
		_, err = r.store.InsertRecord(ctx, rec.MissionID, rec.Stream, rec.Seq, rec.TsNs, []byte(rec.Payload))
	} else {
		err = r.store.InsertRecords(ctx, batch)
	}
	if err != nil {
		return &RecordError{Stream: stream, Count: len(batch), Err: fmt.Errorf("storing records: %w", err)}
	}
	return nil
}

func (r *StoreRecorder) Close() error {
	r.mu.Lock()
	var errs []error
	for stream := range r.pending {
		if err := r.flushLocked(context.Background(), stream); err != nil {
			errs = append(errs, err)
		}
	}
	r.mu.Unlock()

	return errors.Join(append(errs, r.store.Close())...)
}
