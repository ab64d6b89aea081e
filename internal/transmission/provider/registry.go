package provider

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

// ErrUnknownProvider is returned for provider names that are not enabled
var ErrUnknownProvider = errors.New("unknown provider")

// Registry holds the providers enabled at configuration load
type Registry struct {
	providers map[string]Provider
}

func NewRegistry(providers ...Provider) *Registry {
	r := &Registry{providers: make(map[string]Provider)}
	for _, p := range providers {
		r.Register(p)
	}
	return r
}

// Build creates a registry with the named providers. Network providers need
// credentials; unknown names fail here rather than at transmit time.
func Build(names []string, creds map[string]Credentials, opts ...Option) (*Registry, error) {
	r := NewRegistry()
	for _, name := range names {
		p, err := New(strings.ToLower(strings.TrimSpace(name)), creds, opts...)
		if err != nil {
			return nil, err
		}
		r.Register(p)
	}
	return r, nil
}

// New constructs a single provider by name
func New(name string, creds map[string]Credentials, opts ...Option) (Provider, error) {
	switch name {
	case Mock:
		return NewMock(), nil
	case Tradeshift:
		return NewTradeshift(creds[Tradeshift], opts...)
	case Basware:
		return NewBasware(creds[Basware], opts...)
	default:
		return nil, fmt.Errorf("%w %q: use tradeshift, basware or mock", ErrUnknownProvider, name)
	}
}

// Register adds or replaces a provider
func (r *Registry) Register(p Provider) {
	r.providers[p.Name()] = p
}

// Get returns the named provider
func (r *Registry) Get(name string) (Provider, error) {
	p, ok := r.providers[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q is not enabled", ErrUnknownProvider, name)
	}
	return p, nil
}

// Names lists the enabled providers in sorted order
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.providers))
	for name := range r.providers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
