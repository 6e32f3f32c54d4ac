package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"
)

// SqliteStore handles database operations
type SqliteStore struct {
	dbPath string

	writeDB     *sql.DB
	writeDBOnce sync.Once
	writeDBErr  error

	readDB     *sql.DB
	readDBOnce sync.Once
	readDBErr  error

	closeOnce sync.Once
	closeErr  error
}

var _ Store = (*SqliteStore)(nil)

// NewSqliteStore creates a store backed by the Sqlite database at dbPath.
// Connections are opened and the schema initialized on first use.
func NewSqliteStore(dbPath string) *SqliteStore {
	return &SqliteStore{dbPath: dbPath}
}

func runSQLCommand(db *sql.DB, sql string) error {
	_, err := db.Exec(sql)
	return err
}

func (s *SqliteStore) getWriteDB() (*sql.DB, error) {
	s.writeDBOnce.Do(func() {
		db, err := sql.Open("sqlite3", fmt.Sprintf("file:%s?%s", s.dbPath, "_journal_mode=WAL&_synchronous=NORMAL&_busy_timeout=5000"))
		if err != nil {
			s.writeDBErr = fmt.Errorf("opening write connection: %w", err)
			return
		}
		db.SetMaxOpenConns(1) // single writer

		if err = runSQLCommand(db, initSchemaSQL); err != nil {
			_ = db.Close()
			s.writeDBErr = fmt.Errorf("initializing schema: %w", err)
			return
		}

		s.writeDB = db
	})

	return s.writeDB, s.writeDBErr
}

func (s *SqliteStore) getReadDB() (*sql.DB, error) {
	// the schema must exist before the read-only connection can see it
	if _, err := s.getWriteDB(); err != nil {
		return nil, err
	}

	s.readDBOnce.Do(func() {
		db, err := sql.Open("sqlite3", fmt.Sprintf("file:%s?%s", s.dbPath, "mode=ro&_busy_timeout=5000"))
		if err != nil {
			s.readDBErr = fmt.Errorf("opening read connection: %w", err)
			return
		}
		s.readDB = db
	})

	return s.readDB, s.readDBErr
}

func (s *SqliteStore) CreateMission(ctx context.Context, missionID string) (err error) {
	if missionID == "" {
		return errors.New("mission ID is required")
	}

	db, err := s.getWriteDB()
	if err != nil {
		return fmt.Errorf("getting write connection: %w", err)
	}

	stmt, err := db.PrepareContext(ctx, insertMissionSQL)
	if err != nil {
		return fmt.Errorf("preparing statement: %w", err)
	}
	defer closeWithError(stmt, &err)

	if _, err = stmt.ExecContext(ctx, missionID); err != nil {
		return fmt.Errorf("inserting mission: %w", err)
	}
	return nil
}

func (s *SqliteStore) Mission(ctx context.Context, missionID string) (mission *Mission, err error) {
	db, err := s.getReadDB()
	if err != nil {
		err = fmt.Errorf("getting read connection: %w", err)
		return
	}

	stmt, err := db.PrepareContext(ctx, selectMissionSQL)
	if err != nil {
		err = fmt.Errorf("preparing statement: %w", err)
		return
	}
	defer closeWithError(stmt, &err)

	var m Mission
	if err = stmt.QueryRowContext(ctx, missionID).Scan(&m.ID, &m.StartTime); err != nil {
		err = fmt.Errorf("scanning mission: %w", err)
		return
	}

	return &m, nil
}

func (s *SqliteStore) Missions(ctx context.Context) (missions []*Mission, err error) {
	db, err := s.getReadDB()
	if err != nil {
		err = fmt.Errorf("getting read connection: %w", err)
		return
	}

	rows, err := db.QueryContext(ctx, selectMissionsSQL)
	if err != nil {
		err = fmt.Errorf("querying missions: %w", err)
		return
	}
	defer closeWithError(rows, &err)

	for rows.Next() {
		var m Mission
		if err = rows.Scan(&m.ID, &m.StartTime); err != nil {
			err = fmt.Errorf("scanning mission: %w", err)
			return
		}
		missions = append(missions, &m)
	}
	err = rows.Err()
	return
}

func (s *SqliteStore) InsertRecord(ctx context.Context, missionID, stream string, seq int64, tsNs uint64, payload []byte) (recordID int64, err error) {
	ts, err := toSQLTimestamp(tsNs)
	if err != nil {
		return
	}

	db, err := s.getWriteDB()
	if err != nil {
		err = fmt.Errorf("getting write connection: %w", err)
		return
	}

	stmt, err := db.PrepareContext(ctx, insertRecordSQL)
	if err != nil {
		err = fmt.Errorf("preparing statement: %w", err)
		return
	}
	defer closeWithError(stmt, &err)

	result, err := stmt.ExecContext(ctx, missionID, stream, seq, ts, string(payload))
	if err != nil {
		err = fmt.Errorf("inserting record: %w", err)
		return
	}

	recordID, err = result.LastInsertId()
	if err != nil {
		err = fmt.Errorf("getting record ID: %w", err)
	}
	return
}

func (s *SqliteStore) InsertRecords(ctx context.Context, records []*Record) (err error) {
	if len(records) == 0 {
		return
	}

	db, err := s.getWriteDB()
	if err != nil {
		return fmt.Errorf("getting write connection: %w", err)
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer func() {
		if err != nil {
			rollbackWithError(tx, &err)
		}
	}()

	stmt, err := tx.PrepareContext(ctx, insertRecordSQL)
	if err != nil {
		return fmt.Errorf("preparing statement: %w", err)
	}
	defer closeWithError(stmt, &err)

	for _, r := range records {
		var ts int64
		if ts, err = toSQLTimestamp(r.TsNs); err != nil {
			return
		}
		if _, err = stmt.ExecContext(ctx, r.MissionID, r.Stream, r.Seq, ts, r.Payload); err != nil {
			return fmt.Errorf("inserting record: %w", err)
		}
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("committing transaction: %w", err)
	}
	return nil
}

func (s *SqliteStore) Records(ctx context.Context, missionID, stream string) (records []*Record, err error) {
	db, err := s.getReadDB()
	if err != nil {
		err = fmt.Errorf("getting read connection: %w", err)
		return
	}

	rows, err := db.QueryContext(ctx, selectRecordsSQL, missionID, stream)
	if err != nil {
		err = fmt.Errorf("querying records: %w", err)
		return
	}
	defer closeWithError(rows, &err)

	for rows.Next() {
		var r Record
		var ts int64
		if err = rows.Scan(&r.ID, &r.MissionID, &r.Stream, &r.Seq, &ts, &r.Payload, &r.ReceivedAt); err != nil {
			err = fmt.Errorf("scanning record: %w", err)
			return
		}
		r.TsNs = uint64(ts)
		records = append(records, &r)
	}
	err = rows.Err()
	return
}

func (s *SqliteStore) Close() error {
	s.closeOnce.Do(func() {
		var writeErr, readErr error

		if s.readDB != nil {
			readErr = s.readDB.Close()
			s.readDB = nil
		}

		if s.writeDB != nil {
			_ = runSQLCommand(s.writeDB, initIndexesSQL)

			writeErr = s.writeDB.Close()
			s.writeDB = nil
		}

		s.closeErr = errors.Join(writeErr, readErr)
	})

	return s.closeErr
}
