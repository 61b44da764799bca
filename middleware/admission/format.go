// utilitário pequeno para formatação rápida/consistente de valores numéricos
// em headers. Evita puxar fmt (mais pesado e genérico) só para isso e
// padroniza a conversão de segundos/epoch.

package admission

import (
	"strconv"
	"time"
)

func formatInt(v int) string { return strconv.Itoa(v) }

func formatEpoch(t time.Time) string { return strconv.FormatInt(t.Unix(), 10) }

// retrySeconds arredonda para cima: melhor mandar o cliente esperar 1s a
// mais do que convidá-lo a voltar cedo demais e tomar 429 de novo.
func retrySeconds(d time.Duration) int {
	s := int((d + time.Second - 1) / time.Second)
	if s < 1 {
		s = 1
	}
	return s
}
