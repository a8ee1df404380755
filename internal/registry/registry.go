// Package registry is the network registry (C1): the only place
// network-specific constants appear. It maps a closed set of network
// identifiers to chain ID, USDC deployment address, EIP-712 domain, and
// decimal count.
package registry

import (
	"fmt"
	"math/big"
	"sort"

	"github.com/x402proto/facilitator/internal/x402types"
)

// Entry is one network's static configuration.
type Entry struct {
	Network  string
	ChainID  *big.Int
	Asset    string
	Decimals int
	Extra    x402types.Extra
}

// Registry is a read-only lookup of supported networks. The zero value is
// not usable; construct with Default().
type Registry struct {
	entries map[string]Entry
}

// networks is the closed set of networks this facilitator supports,
// mirroring the USDC deployments the spec calls out by name.
var networks = []Entry{
	{
		Network:  "base",
		ChainID:  big.NewInt(8453),
		Asset:    "0x833589fcd6edb6e08f4c7c32d4f71b54bda02913",
		Decimals: 6,
		Extra:    x402types.Extra{Name: "USD Coin", Version: "2"},
	},
	{
		Network:  "base-sepolia",
		ChainID:  big.NewInt(84532),
		Asset:    "0x036cbd53842c5426634e7929541ec2318f3dcf7e",
		Decimals: 6,
		Extra:    x402types.Extra{Name: "USDC", Version: "2"},
	},
	{
		Network:  "polygon",
		ChainID:  big.NewInt(137),
		Asset:    "0x3c499c542cef5e3811e1192ce70d8cc03d5c3359",
		Decimals: 6,
		Extra:    x402types.Extra{Name: "USD Coin", Version: "2"},
	},
	{
		Network:  "polygon-amoy",
		ChainID:  big.NewInt(80002),
		Asset:    "0x41e94eb019c0762f9bfcf9fb1e58725bfb0e7582",
		Decimals: 6,
		Extra:    x402types.Extra{Name: "USDC", Version: "2"},
	},
}

// Default returns the registry populated with this facilitator's closed
// set of supported networks.
func Default() *Registry {
	entries := make(map[string]Entry, len(networks))
	for _, e := range networks {
		entries[e.Network] = e
	}
	return &Registry{entries: entries}
}

// Get returns the Entry for a network, or an error if the network is
// unknown to this facilitator (UnsupportedNetwork in the error taxonomy).
func (r *Registry) Get(network string) (Entry, error) {
	e, ok := r.entries[network]
	if !ok {
		return Entry{}, fmt.Errorf("unsupported network: %s", network)
	}
	return e, nil
}

// IsAsset reports whether addr (case-insensitively) matches the USDC
// deployment address for network. Returns false, not an error, for an
// unknown network; callers must check network validity separately.
func (r *Registry) IsAsset(network, addr string) bool {
	e, ok := r.entries[network]
	if !ok {
		return false
	}
	return equalFoldHex(e.Asset, addr)
}

// Networks returns the list of supported network identifiers, sorted for
// deterministic output (used by the discovery surface).
func (r *Registry) Networks() []string {
	out := make([]string, 0, len(r.entries))
	for n := range r.entries {
		out = append(out, n)
	}
	sort.Strings(out)
	return out
}

// SupportedKinds enumerates every (scheme, network) pair for GET /supported
// and x402.supported.
func (r *Registry) SupportedKinds() []x402types.SupportedKind {
	names := r.Networks()
	kinds := make([]x402types.SupportedKind, 0, len(names))
	for _, n := range names {
		e := r.entries[n]
		extra := e.Extra
		kinds = append(kinds, x402types.SupportedKind{
			Scheme:  x402types.SchemeExact,
			Network: n,
			Extra:   &extra,
		})
	}
	return kinds
}

func equalFoldHex(a, b string) bool {
	norm := func(s string) string {
		if len(s) >= 2 && (s[0:2] == "0x" || s[0:2] == "0X") {
			s = s[2:]
		}
		out := make([]byte, len(s))
		for i := 0; i < len(s); i++ {
			c := s[i]
			if c >= 'A' && c <= 'Z' {
				c += 'a' - 'A'
			}
			out[i] = c
		}
		return string(out)
	}
	return norm(a) == norm(b)
}
