package infra

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"risk-gateway/middleware/security/domain"

	"github.com/fsnotify/fsnotify"
	"gopkg.in/yaml.v3"
)

// blockFile é o formato do arquivo:
//
//	blocked:
//	  - 203.0.113.7
//	  - 198.51.100.0
type blockFile struct {
	Blocked []string `yaml:"blocked"`
}

// FileBlockList mantém a lista em memória e a persiste num arquivo YAML.
//
// Block/Unblock gravam o arquivo; Watch recarrega quando outro processo
// (ex.: `gateway block <id>`) altera o arquivo.
type FileBlockList struct {
	*MemoryBlockList

	path   string
	logger *slog.Logger
	// fileMu serializa alteração+gravação e recarga: uma recarga nunca lê o
	// arquivo entre a mudança em memória e a gravação correspondente.
	fileMu sync.Mutex
}

var _ domain.BlockList = (*FileBlockList)(nil)

func NewFileBlockList(path string, logger *slog.Logger) (*FileBlockList, error) {
	if logger == nil {
		logger = slog.Default()
	}
	b := &FileBlockList{
		MemoryBlockList: NewMemoryBlockList(),
		path:            path,
		logger:          logger,
	}
	if err := b.Load(); err != nil {
		return nil, err
	}
	return b, nil
}

func (b *FileBlockList) Path() string { return b.path }

// Load lê o arquivo e substitui o conjunto em memória. Arquivo inexistente
// equivale a lista vazia.
func (b *FileBlockList) Load() error {
	b.fileMu.Lock()
	defer b.fileMu.Unlock()

	ids, err := readBlockFile(b.path)
	if err != nil {
		return err
	}
	b.Replace(ids)
	return nil
}

// Block bloqueia em memória e grava o arquivo. Se a gravação falhar o
// bloqueio continua valendo neste processo e o erro é devolvido.
func (b *FileBlockList) Block(identity string) error {
	return b.update(b.MemoryBlockList.Block, identity)
}

func (b *FileBlockList) Unblock(identity string) error {
	return b.update(b.MemoryBlockList.Unblock, identity)
}

func (b *FileBlockList) update(apply func(string) error, identity string) error {
	b.fileMu.Lock()
	defer b.fileMu.Unlock()

	if err := apply(identity); err != nil {
		return err
	}
	return writeBlockFile(b.path, b.List())
}

// Watch observa o diretório do arquivo e recarrega a lista a cada escrita,
// criação ou rename. Bloqueia até o ctx encerrar.
func (b *FileBlockList) Watch(ctx context.Context) error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("blocklist watcher: %w", err)
	}
	defer w.Close()

	// observa o diretório: editores e o rename atômico trocam o inode do arquivo
	if err := w.Add(filepath.Dir(b.path)); err != nil {
		return fmt.Errorf("watch %s: %w", filepath.Dir(b.path), err)
	}

	target := filepath.Clean(b.path)
	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(ev.Name) != target {
				continue
			}
			if !ev.Has(fsnotify.Write) && !ev.Has(fsnotify.Create) && !ev.Has(fsnotify.Rename) && !ev.Has(fsnotify.Remove) {
				continue
			}
			if err := b.Load(); err != nil {
				b.logger.Error("blocklist reload failed", "path", b.path, "error", err)
				continue
			}
			b.logger.Info("blocklist reloaded", "path", b.path, "entries", len(b.List()))
		case err, ok := <-w.Errors:
			if !ok {
				return nil
			}
			b.logger.Error("blocklist watcher error", "error", err)
		}
	}
}

func readBlockFile(path string) ([]string, error) {
	raw, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read blocklist: %w", err)
	}
	var f blockFile
	if err := yaml.Unmarshal(raw, &f); err != nil {
		return nil, fmt.Errorf("parse blocklist %s: %w", path, err)
	}
	return f.Blocked, nil
}

// writeBlockFile grava num temporário e renomeia, para o watcher nunca ler
// um arquivo pela metade.
func writeBlockFile(path string, ids []string) error {
	raw, err := yaml.Marshal(blockFile{Blocked: ids})
	if err != nil {
		return err
	}
	tmp, err := os.CreateTemp(filepath.Dir(path), ".blocklist-*")
	if err != nil {
		return fmt.Errorf("write blocklist: %w", err)
	}
	if _, err := tmp.Write(raw); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmp.Name())
		return fmt.Errorf("write blocklist: %w", err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmp.Name())
		return fmt.Errorf("write blocklist: %w", err)
	}
	return os.Rename(tmp.Name(), path)
}

// EditBlockFile aplica block/unblock direto no arquivo, sem processo servindo.
// Usado pela CLI de operação.
func EditBlockFile(path string, block bool, identity string) error {
	id, err := domain.NormalizeIdentity(identity)
	if err != nil {
		return err
	}
	ids, err := readBlockFile(path)
	if err != nil {
		return err
	}
	set := NewMemoryBlockList(ids...)
	if block {
		_ = set.Block(id)
	} else {
		_ = set.Unblock(id)
	}
	return writeBlockFile(path, set.List())
}
