package channels

import (
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/quantra/tradecore/internal/domain"
)

// Registry maps exchange id -> channel name -> channel. Each exchange
// instance holds its own registry handle; there is no process-wide
// registry singleton.
type Registry struct {
	logger *zap.Logger

	mu       sync.RWMutex
	channels map[string]map[string]*Channel
}

func NewRegistry(logger *zap.Logger) *Registry {
	return &Registry{
		logger:   logger,
		channels: make(map[string]map[string]*Channel),
	}
}

// Set registers a channel under an exchange id. Registering the same name
// twice for one exchange is an error.
func (r *Registry) Set(exchangeID string, ch *Channel) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	container, ok := r.channels[exchangeID]
	if !ok {
		container = make(map[string]*Channel)
		r.channels[exchangeID] = container
	}
	if _, exists := container[ch.Name()]; exists {
		return fmt.Errorf("%w: %s on exchange %s", domain.ErrChannelExists, ch.Name(), exchangeID)
	}
	container[ch.Name()] = ch
	return nil
}

// Get returns the named channel for an exchange.
func (r *Registry) Get(exchangeID, name string) (*Channel, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if container, ok := r.channels[exchangeID]; ok {
		if ch, ok := container[name]; ok {
			return ch, nil
		}
	}
	return nil, fmt.Errorf("%w: %s on exchange %s", domain.ErrChannelNotFound, name, exchangeID)
}

// DelChannel stops and removes one channel.
func (r *Registry) DelChannel(exchangeID, name string) {
	r.mu.Lock()
	var ch *Channel
	if container, ok := r.channels[exchangeID]; ok {
		ch = container[name]
		delete(container, name)
	}
	r.mu.Unlock()
	if ch != nil {
		ch.Stop()
	}
}

// DelExchange stops and removes every channel of an exchange.
func (r *Registry) DelExchange(exchangeID string) {
	r.mu.Lock()
	container := r.channels[exchangeID]
	delete(r.channels, exchangeID)
	r.mu.Unlock()
	for _, ch := range container {
		ch.Stop()
	}
}

// GetOrCreate returns the named channel, creating and registering it when
// missing.
func (r *Registry) GetOrCreate(exchangeID, name string) *Channel {
	if ch, err := r.Get(exchangeID, name); err == nil {
		return ch
	}
	ch := NewChannel(name, r.logger)
	if err := r.Set(exchangeID, ch); err != nil {
		// Lost a race; use the winner.
		existing, _ := r.Get(exchangeID, name)
		ch.Stop()
		return existing
	}
	return ch
}
