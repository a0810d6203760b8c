package infra

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"risk-gateway/middleware/audit/domain"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

const auditSchema = `
CREATE TABLE IF NOT EXISTS gateway_audit_log (
	seq         BIGINT PRIMARY KEY,
	id          UUID NOT NULL,
	created_at  TIMESTAMPTZ NOT NULL,
	severity    TEXT NOT NULL,
	client_ip   TEXT NOT NULL,
	method      TEXT NOT NULL,
	path        TEXT NOT NULL,
	status_code INT NOT NULL,
	prev_hash   TEXT NOT NULL,
	hash        TEXT NOT NULL,
	record      JSONB NOT NULL
)`

// SQLSTATE unique_violation
const uniqueViolation = "23505"

type auditDB interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// PostgresSink insere cada registro selado; a tabela só recebe INSERT.
type PostgresSink struct {
	DB auditDB

	mu    sync.Mutex
	chain *domain.Chain
}

// OpenPostgres cria o pool, garante a tabela e retoma a cadeia.
func OpenPostgres(ctx context.Context, dsn string) (*PostgresSink, *pgxpool.Pool, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, nil, fmt.Errorf("audit postgres: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, nil, fmt.Errorf("audit postgres ping: %w", err)
	}
	if _, err := pool.Exec(ctx, auditSchema); err != nil {
		pool.Close()
		return nil, nil, fmt.Errorf("audit postgres schema: %w", err)
	}
	sink, err := NewPostgresSink(ctx, pool)
	if err != nil {
		pool.Close()
		return nil, nil, err
	}
	return sink, pool, nil
}

func NewPostgresSink(ctx context.Context, db auditDB) (*PostgresSink, error) {
	s := &PostgresSink{DB: db}
	if err := s.resync(ctx); err != nil {
		return nil, err
	}
	return s, nil
}

// resync retoma a cadeia a partir da última linha gravada na tabela.
func (s *PostgresSink) resync(ctx context.Context) error {
	var (
		seq  int64
		hash string
	)
	err := s.DB.QueryRow(ctx, `SELECT seq, hash FROM gateway_audit_log ORDER BY seq DESC LIMIT 1`).Scan(&seq, &hash)
	if err != nil && !errors.Is(err, pgx.ErrNoRows) {
		return fmt.Errorf("audit postgres head: %w", err)
	}
	s.chain = domain.ResumeChain(seq, hash)
	return nil
}

func (s *PostgresSink) Write(ctx context.Context, rec domain.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	headSeq, headHash := s.chain.Head()
	err := s.insert(ctx, rec)
	if err == nil {
		return nil
	}

	// a tabela é a referência: um commit ambíguo pode ter gravado a linha
	if rerr := s.resync(ctx); rerr != nil {
		s.chain = domain.ResumeChain(headSeq, headHash)
		return errors.Join(err, rerr)
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
		// seq já ocupado: sela de novo sobre a cabeça atual, uma vez
		return s.insert(ctx, rec)
	}
	return err
}

func (s *PostgresSink) insert(ctx context.Context, rec domain.Record) error {
	sealed, err := s.chain.Seal(rec)
	if err != nil {
		return err
	}
	raw, err := json.Marshal(sealed)
	if err != nil {
		return fmt.Errorf("marshal audit record: %w", err)
	}
	_, err = s.DB.Exec(ctx, `
		INSERT INTO gateway_audit_log
		(seq, id, created_at, severity, client_ip, method, path, status_code, prev_hash, hash, record)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)
	`, sealed.Seq, sealed.ID, sealed.Timestamp, string(sealed.Severity), sealed.ClientIP,
		sealed.Method, sealed.Path, sealed.StatusCode, sealed.PrevHash, sealed.Hash, raw)
	if err != nil {
		return fmt.Errorf("insert audit record: %w", err)
	}
	return nil
}
