// Package infra contém implementações concretas (infraestrutura) para os
// contratos definidos no pacote domain.
//
// Exemplos:
//   - LocalStore: sliding window log em memória, mutex por chave (nó único)
//   - RedisStore: sliding window log sobre sorted sets, script Lua atômico
//   - TicketTable: tabela de tickets em voo com varredura de timeout
//   - MemoryStatsStore / RedisStatsStore: sinks de estatísticas
package infra
