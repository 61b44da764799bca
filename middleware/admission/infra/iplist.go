package infra

import (
	"fmt"

	"github.com/seancfoley/ipaddress-go/ipaddr"
)

// MatchList resolve pertencimento de IPs a uma lista (IPs soltos ou CIDRs),
// usada pelas listas de bypass do limiter. Tries separadas para v4 e v6.
type MatchList struct {
	trieV4 *ipaddr.IPv4AddressTrie
	trieV6 *ipaddr.IPv6AddressTrie
}

// NewMatchList constrói a lista a partir de endereços/CIDRs em texto.
// Entrada inválida é erro: lista de bypass errada é erro de configuração,
// não algo para ignorar em silêncio.
func NewMatchList(entries []string) (*MatchList, error) {
	list := &MatchList{
		trieV4: &ipaddr.IPv4AddressTrie{},
		trieV6: &ipaddr.IPv6AddressTrie{},
	}

	for _, entry := range entries {
		addr, err := ipaddr.NewIPAddressString(entry).ToAddress()
		if err != nil {
			return nil, fmt.Errorf("invalid ip or cidr %q: %w", entry, err)
		}
		if addr.IsIPv4() {
			list.trieV4.Add(addr.ToIPv4().ToPrefixBlock())
		} else if addr.IsIPv6() {
			list.trieV6.Add(addr.ToIPv6().ToPrefixBlock())
		}
	}
	return list, nil
}

// Matches diz se ip pertence à lista. IP não parseável não pertence.
func (l *MatchList) Matches(ip string) bool {
	if l == nil {
		return false
	}

	addr, err := ipaddr.NewIPAddressString(ip).ToAddress()
	if err != nil {
		return false
	}

	// LongestPrefixMatch cobre tanto IPs exatos quanto blocos CIDR que
	// contenham o endereço.
	if addr.IsIPv4() {
		return l.trieV4.LongestPrefixMatch(addr.ToIPv4()) != nil
	}
	if addr.IsIPv6() {
		return l.trieV6.LongestPrefixMatch(addr.ToIPv6()) != nil
	}
	return false
}
