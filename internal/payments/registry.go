package payments

import (
	"fmt"
	"sort"
	"strings"

	"github.com/servetable/servetable/internal/apperr"
)

// ErrUnsupportedProvider is returned by callers when a code has no provider.
var ErrUnsupportedProvider = apperr.New(apperr.ErrUnsupported, "unsupported payment provider")

// Registry maps provider codes to providers. It is built once and never
// modified, so concurrent lookups need no locking.
type Registry struct {
	providers map[string]Provider
}

// NewRegistry indexes providers by upper-cased code. Duplicate or empty codes
// are rejected.
func NewRegistry(providers ...Provider) (*Registry, error) {
	m := make(map[string]Provider, len(providers))
	for _, p := range providers {
		code := strings.ToUpper(strings.TrimSpace(p.Code()))
		if code == "" {
			return nil, fmt.Errorf("payment provider %T has an empty code", p)
		}
		if _, dup := m[code]; dup {
			return nil, fmt.Errorf("payment provider %q registered twice", code)
		}
		m[code] = p
	}
	return &Registry{providers: m}, nil
}

// Lookup returns the provider for code, ignoring case.
func (r *Registry) Lookup(code string) (Provider, bool) {
	p, ok := r.providers[strings.ToUpper(strings.TrimSpace(code))]
	return p, ok
}

// Codes returns the registered codes in sorted order.
func (r *Registry) Codes() []string {
	codes := make([]string, 0, len(r.providers))
	for c := range r.providers {
		codes = append(codes, c)
	}
	sort.Strings(codes)
	return codes
}
