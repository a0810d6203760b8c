// Package domain define contratos e tipos de domínio do rate limit por janela
// deslizante: classes de endpoint, política de cotas, decisão e store de janelas.
//
// Este pacote não depende de net/http nem de implementações concretas.
package domain
