package infra

import (
	"context"
	"errors"
	"io"
	"sync"

	"risk-gateway/middleware/audit/domain"
)

// AsyncSink desacopla a requisição da escrita: Write só enfileira.
// Com o buffer cheio o registro é descartado com ErrBufferFull, o que o
// recorder trata como falha de sink (conta e loga).
type AsyncSink struct {
	next    domain.Sink
	queue   chan domain.Record
	onError func(domain.Record, error)

	mu     sync.RWMutex
	closed bool
	done   chan struct{}
}

// NewAsyncSink inicia o worker. onError recebe falhas do sink de destino,
// que já não têm para onde voltar.
func NewAsyncSink(next domain.Sink, buffer int, onError func(domain.Record, error)) *AsyncSink {
	if buffer <= 0 {
		buffer = 1024
	}
	s := &AsyncSink{
		next:    next,
		queue:   make(chan domain.Record, buffer),
		onError: onError,
		done:    make(chan struct{}),
	}
	go s.run()
	return s
}

func (s *AsyncSink) run() {
	defer close(s.done)
	for rec := range s.queue {
		if err := s.next.Write(context.Background(), rec); err != nil && s.onError != nil {
			s.onError(rec, err)
		}
	}
}

func (s *AsyncSink) Write(_ context.Context, rec domain.Record) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return domain.ErrSinkClosed
	}
	select {
	case s.queue <- rec:
		return nil
	default:
		return domain.ErrBufferFull
	}
}

// Len é o número de registros aguardando escrita.
func (s *AsyncSink) Len() int { return len(s.queue) }

// Close para de aceitar registros e espera o buffer esvaziar (ou o ctx
// expirar). Depois fecha o sink de destino, se ele for io.Closer.
func (s *AsyncSink) Close(ctx context.Context) error {
	s.mu.Lock()
	if !s.closed {
		s.closed = true
		close(s.queue)
	}
	s.mu.Unlock()

	select {
	case <-s.done:
	case <-ctx.Done():
		return ctx.Err()
	}
	if c, ok := s.next.(io.Closer); ok {
		return c.Close()
	}
	return nil
}

// MultiSink escreve em todos e junta os erros.
type MultiSink []domain.Sink

func (m MultiSink) Write(ctx context.Context, rec domain.Record) error {
	var errs []error
	for _, s := range m {
		if s == nil {
			continue
		}
		if err := s.Write(ctx, rec); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (m MultiSink) Close() error {
	var errs []error
	for _, s := range m {
		if c, ok := s.(io.Closer); ok {
			errs = append(errs, c.Close())
		}
	}
	return errors.Join(errs...)
}
