// Package infra contém as implementações da lista de bloqueio:
//
//   - MemoryBlockList: conjunto em memória protegido por RWMutex
//   - FileBlockList: conjunto em memória persistido em YAML e recarregado via fsnotify
package infra
