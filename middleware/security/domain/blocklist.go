// Package domain define o contrato da lista de bloqueio e as regras puras do
// filtro de segurança (padrões suspeitos), sem net/http.
package domain

import (
	"errors"
	"strings"
)

var ErrInvalidIdentity = errors.New("identity must not be empty")

// BlockList é o conjunto de identidades negadas.
//
// Contains está no caminho quente de toda requisição; Block/Unblock são
// chamados raramente por ferramentas de operação. Uma leitura momentaneamente
// desatualizada é aceitável, uma leitura corrompida não.
type BlockList interface {
	Contains(identity string) bool
	Block(identity string) error
	Unblock(identity string) error
	List() []string
}

// NormalizeIdentity remove espaços e rejeita identidade vazia.
func NormalizeIdentity(identity string) (string, error) {
	id := strings.TrimSpace(identity)
	if id == "" {
		return "", ErrInvalidIdentity
	}
	return id, nil
}
