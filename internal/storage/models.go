package storage

import (
	"time"
)

// Mission is one recording run of the ground station
type Mission struct {
	ID        string
	StartTime time.Time
}

// Record is one ingested message stored as its JSON rendering
type Record struct {
	ID         int64
	MissionID  string
	Stream     string
	Seq        int64
	TsNs       uint64
	Payload    string
	ReceivedAt time.Time
}
