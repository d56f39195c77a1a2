package matriz

import (
	"context"
	"errors"
	"sync"

	"github.com/zoobz-io/zyn"
)

// Provider is the LLM backend contract for the language node. It mirrors
// zyn.Provider, so any zyn-compatible backend plugs in unchanged.
type Provider interface {
	Call(ctx context.Context, messages []zyn.Message, temperature float32) (*zyn.ProviderResponse, error)
	Name() string
}

// providerKey carries a Provider through a context.
type providerKeyType struct{}

var providerKey = providerKeyType{}

// Process-wide fallback, used when neither the node nor the context pins one.
var (
	globalProvider   Provider
	globalProviderMu sync.RWMutex
)

// ErrNoProvider is returned when resolution finds no provider at any level.
var ErrNoProvider = errors.New("no provider configured: set via context, node-level, or global")

// SetProvider installs the process-wide fallback provider.
func SetProvider(p Provider) {
	globalProviderMu.Lock()
	defer globalProviderMu.Unlock()
	globalProvider = p
}

// GetProvider returns the process-wide provider, or nil when unset.
func GetProvider() Provider {
	globalProviderMu.RLock()
	defer globalProviderMu.RUnlock()
	return globalProvider
}

// WithProvider pins a provider onto a context, scoping it to one call tree.
func WithProvider(ctx context.Context, p Provider) context.Context {
	return context.WithValue(ctx, providerKey, p)
}

// ProviderFromContext recovers a context-pinned provider, if any.
func ProviderFromContext(ctx context.Context) (Provider, bool) {
	p, ok := ctx.Value(providerKey).(Provider)
	return p, ok
}

// ResolveProvider picks the provider for one language-node call. The node's
// own provider wins, then a context-pinned one, then the process-wide
// fallback; with none of the three set it returns ErrNoProvider.
func ResolveProvider(ctx context.Context, nodeProvider Provider) (Provider, error) {
	if nodeProvider != nil {
		return nodeProvider, nil
	}

	if p, ok := ProviderFromContext(ctx); ok {
		return p, nil
	}

	globalProviderMu.RLock()
	p := globalProvider
	globalProviderMu.RUnlock()

	if p != nil {
		return p, nil
	}

	return nil, ErrNoProvider
}
