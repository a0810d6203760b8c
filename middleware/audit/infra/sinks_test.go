package infra

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"risk-gateway/middleware/audit/domain"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/segmentio/kafka-go"
)

func record(id string, status int) domain.Record {
	return domain.Record{
		ID:         id,
		Timestamp:  time.Unix(1_700_000_000, 0).UTC(),
		Severity:   domain.SeverityFailedRequest,
		ClientIP:   "10.0.0.1",
		Method:     "GET",
		Path:       "/api/v1/alerts",
		StatusCode: status,
	}
}

func TestFileSink_ChainSurvivesReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "audit.jsonl")
	ctx := context.Background()

	s, err := OpenFileSink(path)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	for i, id := range []string{"a", "b", "c"} {
		if err := s.Write(ctx, record(id, 400+i)); err != nil {
			t.Fatalf("write: %v", err)
		}
	}
	if err := s.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	if err := s.Write(ctx, record("late", 500)); !errors.Is(err, domain.ErrSinkClosed) {
		t.Fatalf("expected ErrSinkClosed, got %v", err)
	}

	s, err = OpenFileSink(path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	if err := s.Write(ctx, record("d", 401)); err != nil {
		t.Fatalf("write: %v", err)
	}
	_ = s.Close()

	n, err := VerifyFile(path)
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if n != 4 {
		t.Fatalf("expected 4 records, got %d", n)
	}
}

func writeTwo(t *testing.T, path string) {
	t.Helper()
	s, err := OpenFileSink(path)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	_ = s.Write(context.Background(), record("a", 403))
	_ = s.Write(context.Background(), record("b", 404))
	if err := s.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
}

func appendRaw(t *testing.T, path, raw string) {
	t.Helper()
	f, err := os.OpenFile(path, os.O_APPEND|os.O_WRONLY, 0o600)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer f.Close()
	if _, err := f.WriteString(raw); err != nil {
		t.Fatalf("append: %v", err)
	}
}

func TestOpenFileSink_TruncatesTornLastLine(t *testing.T) {
	path := filepath.Join(t.TempDir(), "audit.jsonl")
	writeTwo(t, path)
	appendRaw(t, path, `{"id":"c","seq":3,"prev_ha`)

	var logs bytes.Buffer
	s, err := OpenFileSink(path, WithFileLogger(slog.New(slog.NewTextHandler(&logs, nil))))
	if err != nil {
		t.Fatalf("expected torn tail to be tolerated, got %v", err)
	}
	if err := s.Write(context.Background(), record("d", 500)); err != nil {
		t.Fatalf("write: %v", err)
	}
	_ = s.Close()

	n, err := VerifyFile(path)
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if n != 3 {
		t.Fatalf("expected 3 records after repair, got %d", n)
	}
	if !strings.Contains(logs.String(), "torn last line") {
		t.Fatalf("expected repair warning, got %q", logs.String())
	}
}

func TestOpenFileSink_LastRecordWithoutNewline(t *testing.T) {
	path := filepath.Join(t.TempDir(), "audit.jsonl")
	writeTwo(t, path)
	raw, _ := os.ReadFile(path)
	if err := os.WriteFile(path, bytes.TrimSuffix(raw, []byte("\n")), 0o600); err != nil {
		t.Fatalf("rewrite: %v", err)
	}

	s, err := OpenFileSink(path)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	_ = s.Write(context.Background(), record("c", 500))
	_ = s.Close()

	if n, err := VerifyFile(path); err != nil || n != 3 {
		t.Fatalf("expected 3 chained records, got %d err=%v", n, err)
	}
}

func TestOpenFileSink_RejectsCorruptionBeforeLastLine(t *testing.T) {
	path := filepath.Join(t.TempDir(), "audit.jsonl")
	writeTwo(t, path)
	raw, _ := os.ReadFile(path)
	corrupted := "not json\n" + string(raw)
	if err := os.WriteFile(path, []byte(corrupted), 0o600); err != nil {
		t.Fatalf("rewrite: %v", err)
	}

	if _, err := OpenFileSink(path); !errors.Is(err, domain.ErrChainBroken) {
		t.Fatalf("expected ErrChainBroken, got %v", err)
	}
}

func TestVerifyFile_DetectsEditedLine(t *testing.T) {
	path := filepath.Join(t.TempDir(), "audit.jsonl")
	s, err := OpenFileSink(path)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	_ = s.Write(context.Background(), record("a", 403))
	_ = s.Write(context.Background(), record("b", 404))
	_ = s.Close()

	raw, _ := os.ReadFile(path)
	edited := strings.Replace(string(raw), `"status_code":404`, `"status_code":200`, 1)
	if err := os.WriteFile(path, []byte(edited), 0o600); err != nil {
		t.Fatalf("rewrite: %v", err)
	}

	if _, err := VerifyFile(path); !errors.Is(err, domain.ErrChainBroken) {
		t.Fatalf("expected ErrChainBroken, got %v", err)
	}
}

func TestSlogSink_WritesSeverityAndLevel(t *testing.T) {
	var buf bytes.Buffer
	s := NewSlogSink(slog.New(slog.NewJSONHandler(&buf, nil)))

	rec := record("a", 403)
	rec.Headers = domain.RedactHeaders(map[string][]string{"Authorization": {"Bearer abc.def"}})
	if err := s.Write(context.Background(), rec); err != nil {
		t.Fatalf("write: %v", err)
	}
	out := buf.String()
	if !strings.Contains(out, `"level":"WARN"`) || !strings.Contains(out, `"msg":"FAILED_REQUEST"`) {
		t.Fatalf("unexpected log line %s", out)
	}
	if strings.Contains(out, "abc.def") {
		t.Fatalf("log line leaks credential: %s", out)
	}
}

// fakeAuditDB guarda as linhas por seq e responde a cabeça da tabela.
type fakeAuditDB struct {
	mu       sync.Mutex
	execErr  error
	landed   bool // com execErr: a linha entra mesmo assim (commit ambíguo)
	execArgs [][]any
	head     []any
	seqs     map[int64]bool
}

func (f *fakeAuditDB) Exec(_ context.Context, _ string, args ...any) (pgconn.CommandTag, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	seq, hash := args[0].(int64), args[9].(string)
	if f.seqs[seq] {
		return pgconn.CommandTag{}, &pgconn.PgError{Code: "23505", Message: "duplicate key value violates unique constraint"}
	}
	if f.execErr != nil && !f.landed {
		return pgconn.CommandTag{}, f.execErr
	}
	if f.seqs == nil {
		f.seqs = make(map[int64]bool)
	}
	f.seqs[seq] = true
	f.head = []any{seq, hash}
	f.execArgs = append(f.execArgs, append([]any(nil), args...))
	return pgconn.NewCommandTag("INSERT 0 1"), f.execErr
}

func (f *fakeAuditDB) QueryRow(_ context.Context, _ string, _ ...any) pgx.Row {
	f.mu.Lock()
	defer f.mu.Unlock()
	return fakeRow{values: f.head}
}

type fakeRow struct{ values []any }

func (r fakeRow) Scan(dest ...any) error {
	if r.values == nil {
		return pgx.ErrNoRows
	}
	*dest[0].(*int64) = r.values[0].(int64)
	*dest[1].(*string) = r.values[1].(string)
	return nil
}

func TestPostgresSink_InsertsSealedRecords(t *testing.T) {
	db := &fakeAuditDB{}
	s, err := NewPostgresSink(context.Background(), db)
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	if err := s.Write(context.Background(), record("a", 500)); err != nil {
		t.Fatalf("write: %v", err)
	}
	if err := s.Write(context.Background(), record("b", 501)); err != nil {
		t.Fatalf("write: %v", err)
	}

	if len(db.execArgs) != 2 {
		t.Fatalf("expected 2 inserts, got %d", len(db.execArgs))
	}
	first, second := db.execArgs[0], db.execArgs[1]
	if first[0].(int64) != 1 || first[8].(string) != domain.GenesisHash {
		t.Fatalf("unexpected first row %v", first[:9])
	}
	if second[0].(int64) != 2 || second[8].(string) != first[9].(string) {
		t.Fatalf("second row must link to first: %v", second[:10])
	}
}

func TestPostgresSink_ResumesAndRewindsOnFailure(t *testing.T) {
	db := &fakeAuditDB{head: []any{int64(41), "abc"}}
	s, err := NewPostgresSink(context.Background(), db)
	if err != nil {
		t.Fatalf("new: %v", err)
	}

	db.execErr = errors.New("connection reset")
	if err := s.Write(context.Background(), record("a", 500)); err == nil {
		t.Fatalf("expected insert error")
	}

	db.execErr = nil
	if err := s.Write(context.Background(), record("b", 500)); err != nil {
		t.Fatalf("write: %v", err)
	}
	row := db.execArgs[0]
	if row[0].(int64) != 42 || row[8].(string) != "abc" {
		t.Fatalf("expected seq 42 linked to stored head, got %v", row[:9])
	}
}

func TestPostgresSink_AmbiguousCommitResyncsFromTable(t *testing.T) {
	db := &fakeAuditDB{}
	s, err := NewPostgresSink(context.Background(), db)
	if err != nil {
		t.Fatalf("new: %v", err)
	}

	// a linha entra, mas o cliente recebe erro
	db.execErr, db.landed = errors.New("connection reset during commit"), true
	if err := s.Write(context.Background(), record("a", 500)); err == nil {
		t.Fatalf("expected commit error")
	}

	db.execErr, db.landed = nil, false
	if err := s.Write(context.Background(), record("b", 500)); err != nil {
		t.Fatalf("write after ambiguous commit: %v", err)
	}
	if len(db.execArgs) != 2 {
		t.Fatalf("expected 2 stored rows, got %d", len(db.execArgs))
	}
	first, second := db.execArgs[0], db.execArgs[1]
	if second[0].(int64) != 2 || second[8].(string) != first[9].(string) {
		t.Fatalf("second row must follow the stored head, got seq=%v prev=%v", second[0], second[8])
	}
}

func TestPostgresSink_UniqueViolationReseals(t *testing.T) {
	db := &fakeAuditDB{}
	s, err := NewPostgresSink(context.Background(), db)
	if err != nil {
		t.Fatalf("new: %v", err)
	}

	// outra instância gravou seq 1 depois que esta leu a cabeça
	db.seqs = map[int64]bool{1: true}
	db.head = []any{int64(1), "other-writer-hash"}

	if err := s.Write(context.Background(), record("a", 500)); err != nil {
		t.Fatalf("expected conflict to be absorbed, got %v", err)
	}
	row := db.execArgs[0]
	if row[0].(int64) != 2 || row[8].(string) != "other-writer-hash" {
		t.Fatalf("expected resealed row seq 2 linked to table head, got seq=%v prev=%v", row[0], row[8])
	}
}

type fakeKafkaWriter struct {
	msgs   []kafka.Message
	closed bool
}

func (w *fakeKafkaWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	w.msgs = append(w.msgs, msgs...)
	return nil
}

func (w *fakeKafkaWriter) Close() error {
	w.closed = true
	return nil
}

func TestKafkaSink_KeysByClient(t *testing.T) {
	w := &fakeKafkaWriter{}
	s := &KafkaSink{writer: w}

	if err := s.Write(context.Background(), record("a", 429)); err != nil {
		t.Fatalf("write: %v", err)
	}
	if len(w.msgs) != 1 || string(w.msgs[0].Key) != "10.0.0.1" {
		t.Fatalf("unexpected messages %+v", w.msgs)
	}
	if !bytes.Contains(w.msgs[0].Value, []byte(`"status_code":429`)) {
		t.Fatalf("unexpected payload %s", w.msgs[0].Value)
	}
	_ = s.Close()
	if !w.closed {
		t.Fatalf("expected writer to be closed")
	}
}

func TestNewKafkaSink_Validates(t *testing.T) {
	if _, err := NewKafkaSink(KafkaConfig{Brokers: []string{" "}, Topic: "audit"}); err == nil {
		t.Fatalf("expected error for empty brokers")
	}
	if _, err := NewKafkaSink(KafkaConfig{Brokers: []string{"localhost:9092"}}); err == nil {
		t.Fatalf("expected error for empty topic")
	}
}

// blockingSink segura as escritas até release ser fechado.
type blockingSink struct {
	release chan struct{}
	mu      sync.Mutex
	n       int
}

func (s *blockingSink) Write(context.Context, domain.Record) error {
	<-s.release
	s.mu.Lock()
	s.n++
	s.mu.Unlock()
	return nil
}

func TestAsyncSink_BufferFullAndDrain(t *testing.T) {
	next := &blockingSink{release: make(chan struct{})}
	s := NewAsyncSink(next, 2, nil)
	ctx := context.Background()

	// o worker pega um registro e fica preso; cabem mais 2 no buffer
	var full int
	for i := 0; i < 10; i++ {
		if err := s.Write(ctx, record("x", 500)); errors.Is(err, domain.ErrBufferFull) {
			full++
		}
	}
	if full == 0 {
		t.Fatalf("expected some writes to hit ErrBufferFull")
	}
	accepted := 10 - full

	close(next.release)
	closeCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	if err := s.Close(closeCtx); err != nil {
		t.Fatalf("close: %v", err)
	}
	next.mu.Lock()
	defer next.mu.Unlock()
	if next.n != accepted {
		t.Fatalf("expected %d drained writes, got %d", accepted, next.n)
	}
	if err := s.Write(ctx, record("late", 500)); !errors.Is(err, domain.ErrSinkClosed) {
		t.Fatalf("expected ErrSinkClosed, got %v", err)
	}
}

type errSink struct{ err error }

func (s errSink) Write(context.Context, domain.Record) error { return s.err }

func TestAsyncSink_ReportsDownstreamErrors(t *testing.T) {
	var (
		mu  sync.Mutex
		got []error
	)
	s := NewAsyncSink(errSink{err: errors.New("boom")}, 4, func(_ domain.Record, err error) {
		mu.Lock()
		got = append(got, err)
		mu.Unlock()
	})
	_ = s.Write(context.Background(), record("a", 500))
	if err := s.Close(context.Background()); err != nil {
		t.Fatalf("close: %v", err)
	}
	mu.Lock()
	defer mu.Unlock()
	if len(got) != 1 {
		t.Fatalf("expected 1 reported error, got %d", len(got))
	}
}

func TestMultiSink_JoinsErrors(t *testing.T) {
	a := errors.New("a failed")
	b := errors.New("b failed")
	var buf bytes.Buffer
	m := MultiSink{errSink{err: a}, NewSlogSink(slog.New(slog.NewTextHandler(&buf, nil))), errSink{err: b}}

	err := m.Write(context.Background(), record("x", 500))
	if !errors.Is(err, a) || !errors.Is(err, b) {
		t.Fatalf("expected joined errors, got %v", err)
	}
	if buf.Len() == 0 {
		t.Fatalf("healthy sink must still receive the record")
	}
}
