package provider

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	xerrors "ChainDeploy/internal/errors"
	"ChainDeploy/internal/networks"
	"ChainDeploy/internal/web3/ethereum"
	"ChainDeploy/pkg/logger"
)

// Source supplies the network table and per-network provider factories.
// *networks.Resolver implements it.
type Source interface {
	Configuration() networks.Configuration
	Factory(name string) (networks.ProviderFactory, error)
}

// Session is one opened network connection.
type Session struct {
	Network    string
	Descriptor networks.Descriptor
	Client     *ethereum.Client

	registry *Registry
	once     sync.Once
}

// Close releases the session's provider and forgets it in the registry.
func (s *Session) Close() {
	if s == nil {
		return
	}
	s.once.Do(func() {
		s.Client.Close()
		if s.registry != nil {
			s.registry.forget(s)
		}
	})
}

// Registry opens sessions on named networks. Providers are built only in
// Open, never at construction.
type Registry struct {
	source Source
	config networks.Configuration
	logger *slog.Logger

	mu       sync.Mutex
	sessions map[*Session]struct{}
	closed   bool
}

// NewRegistry snapshots the configuration from source. It performs no I/O.
func NewRegistry(source Source) (*Registry, error) {
	if source == nil {
		return nil, xerrors.New(xerrors.CodeInvalidArgument, "network source is nil")
	}
	return &Registry{
		source:   source,
		config:   source.Configuration(),
		logger:   logger.Named("registry"),
		sessions: make(map[*Session]struct{}),
	}, nil
}

// Open invokes the network's provider factory and wraps the result in a chain
// client carrying the descriptor's gas settings. Every call builds a new
// provider.
func (r *Registry) Open(ctx context.Context, name string) (*Session, error) {
	if r == nil {
		return nil, errors.New("registry is not initialised")
	}
	r.mu.Lock()
	closed := r.closed
	r.mu.Unlock()
	if closed {
		return nil, xerrors.New(xerrors.CodeInitializationFailure, "registry is closed")
	}

	descriptor, err := r.config.Lookup(name)
	if err != nil {
		return nil, err
	}
	factory, err := r.source.Factory(name)
	if err != nil {
		return nil, err
	}

	p, err := factory(ctx)
	if err != nil {
		return nil, err
	}
	if p == nil {
		return nil, xerrors.New(xerrors.CodeProviderFailure, fmt.Sprintf("network %s: factory returned no provider", name))
	}

	session := &Session{
		Network:    name,
		Descriptor: descriptor,
		Client: ethereum.NewClient(name, p,
			ethereum.WithGasLimit(descriptor.Gas),
			ethereum.WithGasPrice(descriptor.GasPrice)),
		registry: r,
	}

	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		p.Close()
		return nil, xerrors.New(xerrors.CodeInitializationFailure, "registry is closed")
	}
	r.sessions[session] = struct{}{}
	r.mu.Unlock()

	r.logger.Debug("session opened", slog.String("network", name), slog.Int("accounts", len(p.Accounts())))
	return session, nil
}

// Lookup returns the descriptor for name without opening it.
func (r *Registry) Lookup(name string) (networks.Descriptor, error) {
	if r == nil {
		return networks.Descriptor{}, errors.New("registry is not initialised")
	}
	return r.config.Lookup(name)
}

// Active returns the number of open sessions.
func (r *Registry) Active() int {
	if r == nil {
		return 0
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sessions)
}

// Close releases all sessions and rejects further Opens.
func (r *Registry) Close() {
	if r == nil {
		return
	}
	r.mu.Lock()
	r.closed = true
	sessions := make([]*Session, 0, len(r.sessions))
	for s := range r.sessions {
		sessions = append(sessions, s)
	}
	r.mu.Unlock()

	for _, s := range sessions {
		s.Close()
	}
}

// Chains returns the configured network names.
func (r *Registry) Chains() []string {
	if r == nil {
		return nil
	}
	return r.config.Names()
}

func (r *Registry) forget(s *Session) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.sessions, s)
}
