package infra

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"sync"

	"risk-gateway/middleware/audit/domain"
)

// o log revela quem acessou o quê; só o dono lê
const auditFileMode = 0o600

// FileSink grava um registro selado por linha (JSON lines). Ao abrir um
// arquivo existente, a cadeia continua do último registro.
type FileSink struct {
	mu     sync.Mutex
	f      *os.File
	w      *bufio.Writer
	chain  *domain.Chain
	closed bool
}

type FileSinkOption func(*fileSinkConfig)

type fileSinkConfig struct {
	logger *slog.Logger
}

// WithFileLogger recebe o aviso de reparo da cauda do arquivo.
func WithFileLogger(l *slog.Logger) FileSinkOption {
	return func(c *fileSinkConfig) { c.logger = l }
}

// OpenFileSink abre (ou cria) o arquivo e continua a cadeia do último
// registro. Uma última linha incompleta, deixada por queda no meio da
// escrita, é cortada; linha inválida antes dela é erro.
func OpenFileSink(path string, opts ...FileSinkOption) (*FileSink, error) {
	cfg := fileSinkConfig{logger: slog.Default()}
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.logger == nil {
		cfg.logger = slog.Default()
	}

	t, err := scanTail(path)
	if err != nil {
		return nil, err
	}
	if t.torn > 0 {
		if err := os.Truncate(path, t.keep); err != nil {
			return nil, fmt.Errorf("repair audit file: %w", err)
		}
		cfg.logger.Warn("audit file had a torn last line, truncated",
			"path", path, "line", t.tornLine, "bytes", t.torn, "resume_seq", t.last.Seq)
	}

	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, auditFileMode)
	if err != nil {
		return nil, fmt.Errorf("open audit file: %w", err)
	}
	if t.missingNewline {
		if _, err := f.Write([]byte{'\n'}); err != nil {
			_ = f.Close()
			return nil, fmt.Errorf("repair audit file: %w", err)
		}
	}
	return &FileSink{
		f:     f,
		w:     bufio.NewWriter(f),
		chain: domain.ResumeChain(t.last.Seq, t.last.Hash),
	}, nil
}

func (s *FileSink) Write(_ context.Context, rec domain.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return domain.ErrSinkClosed
	}

	// selar e gravar sob o mesmo lock mantém a ordem do arquivo igual à da cadeia
	sealed, err := s.chain.Seal(rec)
	if err != nil {
		return err
	}
	raw, err := json.Marshal(sealed)
	if err != nil {
		return fmt.Errorf("marshal audit record: %w", err)
	}
	raw = append(raw, '\n')
	if _, err := s.w.Write(raw); err != nil {
		return fmt.Errorf("write audit record: %w", err)
	}
	return s.w.Flush()
}

func (s *FileSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	flushErr := s.w.Flush()
	syncErr := s.f.Sync()
	return errors.Join(flushErr, syncErr, s.f.Close())
}

// ReadRecords lê todos os registros de um arquivo JSON lines.
func ReadRecords(r io.Reader) ([]domain.Record, error) {
	var out []domain.Record
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 64*1024), 4*1024*1024)
	line := 0
	for sc.Scan() {
		line++
		if len(sc.Bytes()) == 0 {
			continue
		}
		var rec domain.Record
		if err := json.Unmarshal(sc.Bytes(), &rec); err != nil {
			return nil, fmt.Errorf("%w: line %d: %v", domain.ErrChainBroken, line, err)
		}
		out = append(out, rec)
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("read audit file: %w", err)
	}
	return out, nil
}

// VerifyFile recalcula a cadeia do arquivo e devolve quantos registros
// foram verificados.
func VerifyFile(path string) (int, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, fmt.Errorf("open audit file: %w", err)
	}
	defer f.Close()

	recs, err := ReadRecords(f)
	if err != nil {
		return 0, err
	}
	if err := domain.VerifyChain(recs); err != nil {
		return 0, err
	}
	return len(recs), nil
}

type fileTail struct {
	last           domain.Record
	keep           int64 // bytes até o fim da última linha válida
	torn           int64 // bytes da cauda inválida
	tornLine       int
	missingNewline bool
}

func scanTail(path string) (fileTail, error) {
	var t fileTail
	f, err := os.Open(path)
	if errors.Is(err, fs.ErrNotExist) {
		return t, nil
	}
	if err != nil {
		return t, fmt.Errorf("open audit file: %w", err)
	}
	defer f.Close()

	r := bufio.NewReaderSize(f, 64*1024)
	line := 0
	for {
		raw, rerr := r.ReadBytes('\n')
		if len(raw) > 0 {
			line++
			body := bytes.TrimSpace(raw)
			if len(body) > 0 {
				var rec domain.Record
				if err := json.Unmarshal(body, &rec); err != nil {
					if _, perr := r.Peek(1); perr != io.EOF {
						return t, fmt.Errorf("%w: line %d: %v", domain.ErrChainBroken, line, err)
					}
					t.torn, t.tornLine = int64(len(raw)), line
					return t, nil
				}
				t.last = rec
			}
			t.keep += int64(len(raw))
			t.missingNewline = raw[len(raw)-1] != '\n'
		}
		if rerr == io.EOF {
			return t, nil
		}
		if rerr != nil {
			return t, fmt.Errorf("read audit file: %w", rerr)
		}
	}
}
