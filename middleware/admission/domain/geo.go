package domain

import (
	"context"
	"errors"
)

// CountryResolver resolve o país (código ISO de duas letras) de um IP.
//
// O provedor real é um colaborador externo. Contrato de fallback explícito:
// qualquer erro ou ausência de resultado faz o resolver de regras cair nas
// regras padrão — a falha do geo nunca nega uma requisição.
type CountryResolver interface {
	Country(ctx context.Context, ip string) (string, error)
}

// ErrCountryUnknown indica que o resolver não conhece o IP.
var ErrCountryUnknown = errors.New("country unknown")
