// Package domain define contratos e tipos de domínio para controle de admissão:
// regras de rate limit, decisões, tickets de concorrência e estatísticas.
//
// Este pacote não depende de net/http nem de implementações concretas.
// A intenção é permitir testes de unidade puros e desacoplar regras de negócio
// de detalhes de infraestrutura (Redis, mapas em memória, etc).
package domain
