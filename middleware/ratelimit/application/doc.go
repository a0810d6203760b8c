// Package application contém o caso de uso do rate limit: dado (identidade,
// classe), consultar a janela deslizante e produzir uma Decision.
//
// Ele depende apenas do pacote domain e não conhece net/http.
// Ex.: Service.Decide(ctx, "10.0.0.1", domain.ClassAPI) retorna allow/deny +
// limit/remaining/reset + retry-after.
package application
