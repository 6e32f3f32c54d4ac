package storage

import (
	_ "embed"
)

//go:embed schema.sql
var initSchemaSQL string

const (
	initIndexesSQL = `
CREATE INDEX IF NOT EXISTS idx_records_arrival ON records (mission_id, stream, id)`

	insertMissionSQL = `
INSERT OR IGNORE INTO missions (id, 
                                start_time) 
VALUES (?, CURRENT_TIMESTAMP)`

	selectMissionSQL = `
SELECT 
    id, 
    start_time 
FROM missions 
WHERE 
    id = ?`

	selectMissionsSQL = `
SELECT 
    id, 
    start_time 
FROM missions
ORDER BY start_time, id`

	insertRecordSQL = `
INSERT INTO records (mission_id,
                     stream,
                     seq,
                     ts_ns,
                     payload)
VALUES (?, ?, ?, ?, ?)`

	selectRecordsSQL = `
SELECT 
    id,
    mission_id,
    stream,
    seq,
    ts_ns,
    payload,
    received_at
FROM records
WHERE 
    mission_id = ?
    AND stream = ?
ORDER BY id`
)
