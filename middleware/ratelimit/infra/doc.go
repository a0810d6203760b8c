// Package infra contém implementações concretas (infraestrutura) para os contratos
// definidos no pacote domain.
//
// Exemplos:
//   - MemoryWindowStore: janela deslizante em memória, sharded, com janitor
//   - RedisWindowStore: janela deslizante em sorted set do Redis, com fallback em memória
//   - MemoryStatsStore / RedisStatsStore / PrometheusStatsStore: estatísticas best-effort
package infra
