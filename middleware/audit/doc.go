// Package audit fornece o adapter HTTP do recorder de auditoria.
//
// O middleware envolve o resto da cadeia e observa a resposta final
// (inclusive 403/413/429 gerados pelos estágios internos). Status, bytes e
// duração são capturados com httpsnoop, que preserva as interfaces opcionais
// do ResponseWriter (Flusher, Hijacker, ReaderFrom).
package audit
