// Package ratelimit fornece o adapter HTTP (net/http) do rate limit por janela
// deslizante, por cliente e por classe de endpoint.
//
// Visão geral (camadas):
//
//   - domain: classes, política de cotas, contratos do store (sem net/http)
//   - application: caso de uso Decide(identidade, classe) sem net/http
//   - infra: janela em memória (sharded) e em Redis, estatísticas
//   - ratelimit (este pacote): middleware HTTP + tradução para status/headers
//
// Fluxo no gateway:
//
//  1. Obtém a identidade do cliente (contexto ou XFF/X-Real-IP/peer)
//  2. Classifica o path (auth > upload > api > default)
//  3. Chama a camada application para obter a decisão
//  4. Sempre escreve X-RateLimit-Limit/Remaining/Reset
//  5. Se bloqueado, responde 429 com Retry-After = janela
//  6. Se permitido, chama o próximo handler
package ratelimit
