// Package security implementa o filtro de segurança do gateway (net/http).
//
// Ordem de avaliação por requisição:
//
//  1. Escreve os headers de hardening (presentes em toda resposta, inclusive 403/413)
//  2. Cliente na lista de bloqueio: 403, sem chamar o próximo estágio
//  3. Content-Length declarado acima do máximo: 413
//  4. Padrão suspeito em path/query (opcional, BlockSuspicious): 403
//  5. Chama o próximo handler; corpo sem tamanho declarado é limitado por
//     http.MaxBytesReader
//
// As rejeições não passam pelo rate limit: o filtro fica antes dele na cadeia.
package security
