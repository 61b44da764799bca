package admission

import (
	"net"
	"net/http"
	"strings"
)

// IdentityFunc extrai (identidade, papel) autenticados da requisição.
// Colaborador externo: este subsistema nunca valida credenciais.
type IdentityFunc func(r *http.Request) (identity, role string)

// HeaderIdentity lê identidade e papel de headers já validados a montante
// (ex: injetados pelo middleware de autenticação).
func HeaderIdentity(identityHeader, roleHeader string) IdentityFunc {
	return func(r *http.Request) (string, string) {
		return strings.TrimSpace(r.Header.Get(identityHeader)),
			strings.TrimSpace(r.Header.Get(roleHeader))
	}
}

// ClientIP resolve o IP do cliente. Com trustProxy, usa o primeiro salto do
// X-Forwarded-For (cliente original); senão, o host do RemoteAddr.
func ClientIP(r *http.Request, trustProxy bool) string {
	if trustProxy {
		if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
			parts := strings.Split(xff, ",")
			if len(parts) > 0 {
				ip := strings.TrimSpace(parts[0])
				if ip != "" {
					return ip
				}
			}
		}
	}

	// fallback: RemoteAddr
	host, _, err := net.SplitHostPort(strings.TrimSpace(r.RemoteAddr))
	if err == nil && host != "" {
		return host
	}
	if r.RemoteAddr != "" {
		return r.RemoteAddr
	}
	return "unknown"
}
