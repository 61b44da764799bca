package domain

import (
	"context"
	"time"
)

// StatsEvent representa um evento de decisão do controle de admissão.
//
// Ele é propositalmente "agnóstico de HTTP": Method/Path são strings genéricas
// e podem ser usadas para web, gRPC, etc.
//
// Observação: cuidado com cardinalidade (ex.: salvar Key/Path sem controle pode
// explodir o número de séries/chaves em uma base como Redis/Prometheus).
type StatsEvent struct {
	Key      Key
	Allowed  bool
	Identity string

	Method string
	Path   string

	At time.Time
}

// Usage acumula contadores de uso por rota/IP/usuário. Apenas observabilidade:
// nunca é consultado para decidir admissão.
type Usage struct {
	Requests int64     `json:"requests"`
	Limited  int64     `json:"limited"`
	LastSeen time.Time `json:"lastSeen"`
}

// StatsSnapshot é o retrato agregado exposto pelas operações administrativas.
type StatsSnapshot struct {
	Total      Usage            `json:"total"`
	ByRoute    map[string]Usage `json:"byRoute,omitempty"`
	ByKey      map[string]Usage `json:"byKey,omitempty"`
	ByIdentity map[string]Usage `json:"byIdentity,omitempty"`
}

// StatsStore é a estratégia de persistência para estatísticas.
//
// Implementações podem armazenar em Redis, memória, etc.
// O middleware trata erro como best-effort (não derruba request) e grava de
// forma assíncrona, fora do caminho de resposta.
type StatsStore interface {
	Record(ctx context.Context, ev StatsEvent) error
}

// StatsReader complementa StatsStore para as operações administrativas.
type StatsReader interface {
	Snapshot(ctx context.Context) (StatsSnapshot, error)
}
