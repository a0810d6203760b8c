package domain

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
)

// GenesisHash é o prev_hash do primeiro registro de uma cadeia.
const GenesisHash = "0000000000000000000000000000000000000000000000000000000000000000"

var ErrChainBroken = errors.New("audit chain broken")

// ComputeHash é o SHA-256 do JSON do registro com Hash vazio.
func ComputeHash(rec Record) (string, error) {
	rec.Hash = ""
	raw, err := json.Marshal(rec)
	if err != nil {
		return "", fmt.Errorf("marshal audit record: %w", err)
	}
	sum := sha256.Sum256(raw)
	return hex.EncodeToString(sum[:]), nil
}

// Chain atribui seq e prev_hash em ordem. Seguro para uso concorrente, mas o
// chamador precisa persistir na mesma ordem em que selou.
type Chain struct {
	mu   sync.Mutex
	seq  int64
	prev string
}

func NewChain() *Chain { return &Chain{prev: GenesisHash} }

// ResumeChain continua a partir do último registro persistido.
func ResumeChain(lastSeq int64, lastHash string) *Chain {
	if lastSeq <= 0 || lastHash == "" {
		return NewChain()
	}
	return &Chain{seq: lastSeq, prev: lastHash}
}

func (c *Chain) Seal(rec Record) (Record, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	rec.Seq = c.seq + 1
	rec.PrevHash = c.prev
	h, err := ComputeHash(rec)
	if err != nil {
		return Record{}, err
	}
	rec.Hash = h

	c.seq = rec.Seq
	c.prev = h
	return rec, nil
}

// Head devolve o último seq/hash selado.
func (c *Chain) Head() (int64, string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.seq, c.prev
}

// VerifyChain confere seq contíguo, encadeamento e hash de cada registro.
func VerifyChain(records []Record) error {
	prev := GenesisHash
	var seq int64
	for _, rec := range records {
		seq++
		if rec.Seq != seq {
			return fmt.Errorf("%w: expected seq %d, found %d", ErrChainBroken, seq, rec.Seq)
		}
		if rec.PrevHash != prev {
			return fmt.Errorf("%w: seq %d: prev_hash mismatch", ErrChainBroken, rec.Seq)
		}
		h, err := ComputeHash(rec)
		if err != nil {
			return err
		}
		if h != rec.Hash {
			return fmt.Errorf("%w: seq %d: hash mismatch", ErrChainBroken, rec.Seq)
		}
		prev = rec.Hash
	}
	return nil
}
