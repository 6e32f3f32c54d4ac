package storage

import (
	"context"

	_ "github.com/mattn/go-sqlite3"
)

// Store persists the messages received by the ground station, grouped into missions.
// Records of one mission and stream are kept in arrival order; seq restarts with
// every gRPC stream, so it does not order records across streams.
type Store interface {
	// CreateMission registers a mission. Creating an existing mission is a no-op.
	//
	// Parameters:
	//   - ctx: Context for cancellation and timeouts
	//   - missionID: Unique identifier of the mission (see NewMissionID)
	//
	// Returns:
	//   - error: If creation fails or context is cancelled
	CreateMission(ctx context.Context, missionID string) error

	// Mission retrieves a mission by its ID.
	Mission(ctx context.Context, missionID string) (*Mission, error)

	// Missions returns all missions ordered by start time.
	Missions(ctx context.Context) ([]*Mission, error)

	// InsertRecord stores one received message.
	//
	// Parameters:
	//   - ctx: Context for cancellation and timeouts
	//   - missionID: Mission the record belongs to
	//   - stream: Stream name, eg "telemetry" or "detections"
	//   - seq: 1-based position of the message within its gRPC stream
	//   - tsNs: Sample timestamp, nanoseconds since the Unix epoch
	//   - payload: JSON rendering of the message
	//
	// Returns:
	//   - recordID: Unique identifier of the stored record
	//   - error: If storage fails or context is cancelled
	InsertRecord(ctx context.Context, missionID, stream string, seq int64, tsNs uint64, payload []byte) (recordID int64, err error)

	// InsertRecords stores a batch of received messages in one transaction, in
	// slice order. Either all records are stored or none.
	InsertRecords(ctx context.Context, records []*Record) error

	// Records returns the records of a mission stream in arrival order.
	Records(ctx context.Context, missionID, stream string) ([]*Record, error)

	// Close releases all database connections and resources.
	// It is safe to call Close multiple times.
	Close() error
}
