// Package domain define o registro de auditoria e as regras puras que o
// produzem: caminhos sensíveis, flags de segurança, severidade, redação de
// credenciais e o encadeamento por hash (SHA-256) que torna o log verificável.
//
// Nada aqui depende de net/http nem de sinks concretos.
package domain
