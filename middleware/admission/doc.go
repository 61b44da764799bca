// Package admission fornece adapters HTTP (net/http) para controle de
// admissão: rate limit por janela deslizante, backpressure e limite de
// concorrência.
//
// Visão geral (camadas):
//
//   - domain: contratos e tipos do domínio (sem dependência de net/http)
//   - application: casos de uso (resolução de regras, avaliação, backpressure,
//     portão de concorrência) sem net/http
//   - infra: implementações concretas (sliding window log local e em Redis,
//     tabela de tickets, sinks de estatísticas), detalhes de infraestrutura
//   - admission (este pacote): middlewares HTTP + wiring/extração de chave +
//     tradução de decisões para status/headers/corpo
//
// Fluxo no gateway:
//
//  1. Predicados de bypass (flag, IPs, papéis, caminhos) — antes de qualquer I/O
//  2. Extrai identidade/IP/rota e resolve as regras aplicáveis
//  3. Avalia todas as regras concorrentemente no CounterStore
//  4. Se negado, responde 429 (rate limit) ou 503 (concorrência) com headers
//  5. Se permitido, backpressure pode ainda atrasar antes de seguir adiante
//  6. Estatísticas são gravadas de forma assíncrona, fora do caminho de resposta
package admission
