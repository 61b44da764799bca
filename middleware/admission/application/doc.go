// Package application contém os casos de uso (regras de aplicação) do
// controle de admissão: resolução de regras, avaliação concorrente,
// backpressure e portão de concorrência.
//
// Ele depende apenas do pacote domain e não conhece net/http.
// Ex.: Engine.Evaluate(ctx, req) retorna um domain.Aggregate (allow/deny +
// regra violada + headers informativos).
package application
