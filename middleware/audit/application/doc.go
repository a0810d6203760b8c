// Package application contém o caso de uso de auditoria: decidir se a troca
// requisição/resposta deve ser registrada, montar o registro e entregá-lo ao
// sink sem nunca propagar falhas para o caminho da requisição.
package application
