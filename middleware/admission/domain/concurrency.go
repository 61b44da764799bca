package domain

import "time"

// Ticket representa uma requisição em voo sob o portão de concorrência.
type Ticket struct {
	ID       string
	Key      Key
	IssuedAt time.Time
}

// TicketPool mantém a tabela limitada de tickets em voo por chave.
//
// Acquire rejeita imediatamente (sem espera) quando a chave já tem max
// tickets ativos. Release é idempotente: liberar duas vezes, ou liberar um
// ticket já removido pela varredura de timeout, é um no-op.
type TicketPool interface {
	Acquire(key Key, max int) (Ticket, bool)
	Release(t Ticket)
	Active(key Key) int
}
