package app

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"google.golang.org/grpc"
	"google.golang.org/grpc/test/bufconn"
	"google.golang.org/protobuf/proto"

	"github.com/roman-kulish/uxv-edge/internal/storage"
	"github.com/roman-kulish/uxv-edge/internal/telemetry"
	"github.com/roman-kulish/uxv-edge/internal/wire"
)

type memRecorder struct {
	mu       sync.Mutex
	seqs     map[string][]int64
	records  map[string][][]byte
	flushed  map[string]int
	err      error
	flushErr error
}

func newMemRecorder() *memRecorder {
	return &memRecorder{
		seqs:    make(map[string][]int64),
		records: make(map[string][][]byte),
		flushed: make(map[string]int),
	}
}

func (r *memRecorder) Record(_ context.Context, stream string, seq int64, _ uint64, msg proto.Message) error {
	if r.err != nil {
		return r.err
	}

	payload, err := wire.MarshalJSON(msg)
	if err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.seqs[stream] = append(r.seqs[stream], seq)
	r.records[stream] = append(r.records[stream], payload)
	return nil
}

func (r *memRecorder) Flush(_ context.Context, stream string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.flushed[stream]++
	return r.flushErr
}

func (r *memRecorder) Close() error { return nil }

type testServer struct {
	conn    *grpc.ClientConn
	metrics *Metrics
	cancel  context.CancelFunc
	done    chan error
}

func startIngest(t *testing.T, options ...func(*IngestServer)) *testServer {
	t.Helper()

	reg := prometheus.NewRegistry()
	metrics := NewMetrics(reg)
	srv := NewIngestServer(append([]func(*IngestServer){WithMetrics(metrics)}, options...)...)

	lis := bufconn.Listen(1 << 20)
	ctx, cancel := context.WithCancel(context.Background())

	ts := &testServer{metrics: metrics, cancel: cancel, done: make(chan error, 1)}
	go func() {
		config := NewConfig()
		ts.done <- Serve(ctx, lis, NewGRPCServer(&config.Server, srv), nil, time.Second, srv.logger)
	}()

	conn, err := wire.Dial("passthrough:///bufnet", grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) {
		return lis.DialContext(ctx)
	}))
	if err != nil {
		t.Fatalf("Dial() error = %v", err)
	}
	ts.conn = conn

	t.Cleanup(func() {
		_ = conn.Close()
		cancel()
		<-ts.done
	})

	return ts
}

func TestIngestServer_Telemetry(t *testing.T) {
	recorder := newMemRecorder()
	ts := startIngest(t, WithRecorder(recorder))

	s, err := wire.NewTelemetryClient(ts.conn).StreamTelemetry(context.Background())
	if err != nil {
		t.Fatalf("StreamTelemetry() error = %v", err)
	}

	g := telemetry.NewTelemetryGenerator(200 * time.Millisecond)
	const t0 = uint64(1_700_000_000_000_000_000)
	for i := 0; i < 3; i++ {
		if err = s.Send(g.Sample(i, t0)); err != nil {
			t.Fatalf("Send() error = %v", err)
		}
	}

	ack, err := s.CloseAndRecv()
	if err != nil {
		t.Fatalf("CloseAndRecv() error = %v", err)
	}
	if !ack.OK {
		t.Errorf("ack.OK = false, want true")
	}

	recorder.mu.Lock()
	defer recorder.mu.Unlock()

	if got := recorder.seqs[StreamTelemetry]; len(got) != 3 || got[0] != 1 || got[2] != 3 {
		t.Fatalf("recorded sequence = %v, want [1 2 3]", got)
	}

	var row map[string]any
	if err = json.Unmarshal(recorder.records[StreamTelemetry][2], &row); err != nil {
		t.Fatalf("json.Unmarshal() error = %v", err)
	}
	if got, want := row["ts_ns"], "1700000000400000000"; got != want {
		t.Errorf("ts_ns = %v, want %v", got, want)
	}

	if got := testutil.ToFloat64(ts.metrics.received.WithLabelValues(StreamTelemetry)); got != 3 {
		t.Errorf("uxv_records_received_total{stream=telemetry} = %v, want 3", got)
	}
	if got := testutil.ToFloat64(ts.metrics.closed.WithLabelValues(StreamTelemetry)); got != 1 {
		t.Errorf("uxv_streams_closed_total{stream=telemetry} = %v, want 1", got)
	}
	if got := recorder.flushed[StreamTelemetry]; got != 1 {
		t.Errorf("telemetry flushed %d times, want once on close", got)
	}
}

func TestIngestServer_Detections(t *testing.T) {
	recorder := newMemRecorder()
	ts := startIngest(t, WithRecorder(recorder))

	s, err := wire.NewDetectionClient(ts.conn).StreamDetections(context.Background())
	if err != nil {
		t.Fatalf("StreamDetections() error = %v", err)
	}

	g := telemetry.NewDetectionGenerator(500*time.Millisecond, nil)
	for i := 0; i < 5; i++ {
		if err = s.Send(g.Sample(i, 1)); err != nil {
			t.Fatalf("Send() error = %v", err)
		}
	}

	ack, err := s.CloseAndRecv()
	if err != nil {
		t.Fatalf("CloseAndRecv() error = %v", err)
	}
	if !ack.OK {
		t.Errorf("ack.OK = false, want true")
	}

	recorder.mu.Lock()
	defer recorder.mu.Unlock()

	if got := len(recorder.records[StreamDetections]); got != 5 {
		t.Fatalf("recorded %d detections, want 5", got)
	}
	if got := len(recorder.records[StreamTelemetry]); got != 0 {
		t.Errorf("recorded %d telemetry samples, want 0", got)
	}

	var row map[string]any
	if err = json.Unmarshal(recorder.records[StreamDetections][0], &row); err != nil {
		t.Fatalf("json.Unmarshal() error = %v", err)
	}
	if got, want := row["cls"], "target"; got != want {
		t.Errorf("cls = %v, want %v", got, want)
	}

	if got := testutil.ToFloat64(ts.metrics.received.WithLabelValues(StreamDetections)); got != 5 {
		t.Errorf("uxv_records_received_total{stream=detections} = %v, want 5", got)
	}
}

func TestIngestServer_RecorderFailure(t *testing.T) {
	recorder := newMemRecorder()
	recorder.err = errors.New("disk full")
	ts := startIngest(t, WithRecorder(recorder))

	s, err := wire.NewTelemetryClient(ts.conn).StreamTelemetry(context.Background())
	if err != nil {
		t.Fatalf("StreamTelemetry() error = %v", err)
	}
	if err = s.Send(telemetry.Telemetry{TimestampNs: 1}); err != nil {
		t.Fatalf("Send() error = %v", err)
	}

	ack, err := s.CloseAndRecv()
	if err != nil {
		t.Fatalf("CloseAndRecv() error = %v", err)
	}
	if !ack.OK {
		t.Errorf("ack.OK = false, want true")
	}

	if got := testutil.ToFloat64(ts.metrics.failed.WithLabelValues(StreamTelemetry)); got != 1 {
		t.Errorf("uxv_records_failed_total{stream=telemetry} = %v, want 1", got)
	}
}

func TestIngestServer_FlushFailure(t *testing.T) {
	recorder := newMemRecorder()
	recorder.flushErr = &RecordError{Stream: StreamDetections, Count: 4, Err: errors.New("database is locked")}
	ts := startIngest(t, WithRecorder(recorder))

	s, err := wire.NewDetectionClient(ts.conn).StreamDetections(context.Background())
	if err != nil {
		t.Fatalf("StreamDetections() error = %v", err)
	}
	if err = s.Send(telemetry.Detection{TimestampNs: 1, Class: "target"}); err != nil {
		t.Fatalf("Send() error = %v", err)
	}

	ack, err := s.CloseAndRecv()
	if err != nil {
		t.Fatalf("CloseAndRecv() error = %v", err)
	}
	if !ack.OK {
		t.Errorf("ack.OK = false, want true")
	}

	if got := testutil.ToFloat64(ts.metrics.failed.WithLabelValues(StreamDetections)); got != 4 {
		t.Errorf("uxv_records_failed_total{stream=detections} = %v, want 4", got)
	}
}

func TestServe_Shutdown(t *testing.T) {
	lis := bufconn.Listen(1 << 20)
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan error, 1)
	go func() {
		config := NewConfig()
		done <- Serve(ctx, lis, NewGRPCServer(&config.Server, NewIngestServer()), nil, time.Second, NewIngestServer().logger)
	}()

	cancel()

	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Serve() error = %v, want nil after cancellation", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatalf("Serve() did not return after cancellation")
	}
}

func TestStoreRecorder(t *testing.T) {
	ctx := context.Background()
	dbPath := filepath.Join(t.TempDir(), "ground.sqlite")
	store := storage.NewSqliteStore(dbPath)

	recorder, err := NewStoreRecorder(ctx, store, "mission-test", WithBatchSize(2))
	if err != nil {
		t.Fatalf("NewStoreRecorder() error = %v", err)
	}
	if m := recorder.Mission(); m.ID != "mission-test" || m.StartTime.IsZero() {
		t.Errorf("Mission() = %+v", m)
	}

	g := telemetry.NewTelemetryGenerator(time.Second)
	record := func(i int) {
		t.Helper()
		sample := g.Sample(i, 42)
		if err := recorder.Record(ctx, StreamTelemetry, int64(i+1), sample.TimestampNs, wire.TelemetryMessage(sample)); err != nil {
			t.Fatalf("Record() error = %v", err)
		}
	}
	stored := func() []*storage.Record {
		t.Helper()
		records, err := store.Records(ctx, "mission-test", StreamTelemetry)
		if err != nil {
			t.Fatalf("Records() error = %v", err)
		}
		return records
	}

	record(0)
	if got := len(stored()); got != 0 {
		t.Fatalf("stored %d records before the batch filled, want 0", got)
	}

	record(1)
	records := stored()
	if len(records) != 2 {
		t.Fatalf("stored %d records after a full batch, want 2", len(records))
	}
	if records[0].TsNs != 42 {
		t.Errorf("TsNs = %d, want 42", records[0].TsNs)
	}

	var row map[string]any
	if err = json.Unmarshal([]byte(records[0].Payload), &row); err != nil {
		t.Fatalf("json.Unmarshal() error = %v", err)
	}
	if got, want := row["alt_m"], 120.0; got != want {
		t.Errorf("alt_m = %v, want %v", got, want)
	}

	record(2)
	if err = recorder.Flush(ctx, StreamTelemetry); err != nil {
		t.Fatalf("Flush() error = %v", err)
	}
	if got := len(stored()); got != 3 {
		t.Errorf("stored %d records after Flush, want 3", got)
	}

	// Close writes what is still buffered
	record(3)
	if err = recorder.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}

	reopened := storage.NewSqliteStore(dbPath)
	defer func() { _ = reopened.Close() }()
	records, err = reopened.Records(ctx, "mission-test", StreamTelemetry)
	if err != nil {
		t.Fatalf("Records() error = %v", err)
	}
	if len(records) != 4 {
		t.Errorf("stored %d records after Close, want 4", len(records))
	}
}

// failingStore rejects every batch
type failingStore struct {
	storage.Store
}

func (failingStore) CreateMission(context.Context, string) error { return nil }

func (failingStore) Mission(_ context.Context, missionID string) (*storage.Mission, error) {
	return &storage.Mission{ID: missionID, StartTime: time.Now()}, nil
}

func (failingStore) InsertRecords(context.Context, []*storage.Record) error {
	return errors.New("disk I/O error")
}

func TestStoreRecorder_FailedBatch(t *testing.T) {
	ctx := context.Background()

	recorder, err := NewStoreRecorder(ctx, failingStore{}, "mission-test", WithBatchSize(3))
	if err != nil {
		t.Fatalf("NewStoreRecorder() error = %v", err)
	}

	for i := 0; i < 2; i++ {
		if err = recorder.Record(ctx, StreamDetections, int64(i+1), 1, wire.DetectionMessage(telemetry.Detection{})); err != nil {
			t.Fatalf("Record() error = %v", err)
		}
	}

	err = recorder.Flush(ctx, StreamDetections)
	var recordErr *RecordError
	if !errors.As(err, &recordErr) {
		t.Fatalf("Flush() error = %v, want *RecordError", err)
	}
	if recordErr.Count != 2 || recordErr.Stream != StreamDetections {
		t.Errorf("RecordError = %+v, want 2 lost detections", recordErr)
	}

	// a failed batch is dropped, not retried
	if err = recorder.Flush(ctx, StreamDetections); err != nil {
		t.Errorf("second Flush() error = %v", err)
	}
}

func TestCreateRecorder(t *testing.T) {
	ctx := context.Background()
	logger := NewIngestServer().logger

	config := NewConfig().Storage
	config.DataDirectory = filepath.Join(t.TempDir(), "missions")
	config.MissionID = "mission-a"

	recorder, err := createRecorder(ctx, &config, logger)
	if err != nil {
		t.Fatalf("createRecorder() error = %v", err)
	}
	if err = recorder.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}

	config.MissionID = ""
	recorder, err = createRecorder(ctx, &config, logger)
	if err != nil {
		t.Fatalf("createRecorder() error = %v", err)
	}
	defer func() { _ = recorder.Close() }()

	if !strings.HasPrefix(recorder.Mission().ID, "mission-") || recorder.Mission().ID == "mission-a" {
		t.Errorf("Mission().ID = %s, want a generated mission ID", recorder.Mission().ID)
	}
}
