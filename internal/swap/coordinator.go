// Package swap coordinates the lifecycle of cross-chain HTLC swap orders:
// creation, escrow deployment on both chains, withdrawal and cancellation.
package swap

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"

	"github.com/klingon-exchange/htlc-resolver/internal/chain"
	"github.com/klingon-exchange/htlc-resolver/internal/order"
	"github.com/klingon-exchange/htlc-resolver/internal/storage"
	"github.com/klingon-exchange/htlc-resolver/pkg/logging"
)

// Default timelock bounds.
const (
	DefaultMinTimelock     = time.Hour
	DefaultMaxTimelock     = 48 * time.Hour
	DefaultDefaultTimelock = 2 * time.Hour
)

// Event types.
const (
	EventOrderCreated   = "order_created"
	EventEscrowDeployed = "escrow_deployed"
	EventOrderExecuted  = "order_executed"
	EventExecuteFailed  = "execute_failed"
	EventLegWithdrawn   = "leg_withdrawn"
	EventOrderCompleted = "order_completed"
	EventLegCancelled   = "leg_cancelled"
	EventOrderCancelled = "order_cancelled"
)

// SwapEvent is emitted on every order state change.
type SwapEvent struct {
	ID        string
	OrderHash common.Hash
	Type      string
	Data      map[string]interface{}
	Timestamp time.Time
}

// EventHandler is called when swap events occur.
type EventHandler func(event SwapEvent)

// Config holds configuration for the Coordinator.
type Config struct {
	Registry storage.Registry
	Chains   *chain.Registry

	// Timelocks must lie strictly inside (now+MinTimelock, now+MaxTimelock).
	MinTimelock     time.Duration
	MaxTimelock     time.Duration
	DefaultTimelock time.Duration

	Version string
	Logger  *logging.Logger

	// Clock is the local clock used for default timelocks; time.Now if nil.
	Clock func() time.Time
}

// Coordinator drives orders through the registry and the chain adapters.
type Coordinator struct {
	mu sync.RWMutex

	registry storage.Registry
	chains   *chain.Registry

	minTimelock     time.Duration
	maxTimelock     time.Duration
	defaultTimelock time.Duration
	version         string
	clock           func() time.Time

	// Orders with a running deployment pipeline.
	inflight map[common.Hash]struct{}

	// Per (order, leg) dispatch locks for withdraw and cancel.
	legLocks map[legKey]*legLock

	eventHandlers []EventHandler

	log *logging.Logger

	// Context for background pipelines
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

type legKey struct {
	hash common.Hash
	side order.Side
}

type legLock struct {
	mu   sync.Mutex
	refs int
}

// NewCoordinator creates a new swap coordinator.
func NewCoordinator(cfg *Config) *Coordinator {
	ctx, cancel := context.WithCancel(context.Background())

	c := &Coordinator{
		registry:        cfg.Registry,
		chains:          cfg.Chains,
		minTimelock:     cfg.MinTimelock,
		maxTimelock:     cfg.MaxTimelock,
		defaultTimelock: cfg.DefaultTimelock,
		version:         cfg.Version,
		clock:           cfg.Clock,
		inflight:        make(map[common.Hash]struct{}),
		legLocks:        make(map[legKey]*legLock),
		eventHandlers:   make([]EventHandler, 0),
		log:             cfg.Logger,
		ctx:             ctx,
		cancel:          cancel,
	}
	if c.minTimelock == 0 {
		c.minTimelock = DefaultMinTimelock
	}
	if c.maxTimelock == 0 {
		c.maxTimelock = DefaultMaxTimelock
	}
	if c.defaultTimelock == 0 {
		c.defaultTimelock = DefaultDefaultTimelock
	}
	if c.clock == nil {
		c.clock = time.Now
	}
	if c.log == nil {
		c.log = logging.GetDefault()
	}
	c.log = c.log.Component("swap")
	return c
}

// OnEvent registers an event handler.
func (c *Coordinator) OnEvent(handler EventHandler) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.eventHandlers = append(c.eventHandlers, handler)
}

// emitEvent delivers an event to every handler on its own goroutine.
func (c *Coordinator) emitEvent(orderHash common.Hash, eventType string, data map[string]interface{}) {
	event := SwapEvent{
		ID:        uuid.NewString(),
		OrderHash: orderHash,
		Type:      eventType,
		Data:      data,
		Timestamp: time.Now(),
	}

	c.mu.RLock()
	handlers := make([]EventHandler, len(c.eventHandlers))
	copy(handlers, c.eventHandlers)
	c.mu.RUnlock()

	for _, handler := range handlers {
		go handler(event)
	}
}

// Close cancels running pipelines and waits for them to return.
func (c *Coordinator) Close() error {
	c.cancel()
	c.wg.Wait()
	return nil
}

// SupportedChains returns the chain IDs the resolver can serve.
func (c *Coordinator) SupportedChains() []uint64 {
	return c.chains.IDs()
}

// claim reserves the execution slot for an order.
func (c *Coordinator) claim(hash common.Hash) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, busy := c.inflight[hash]; busy {
		return false
	}
	c.inflight[hash] = struct{}{}
	return true
}

func (c *Coordinator) release(hash common.Hash) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.inflight, hash)
}

// lockLeg serializes withdraw and cancel dispatch for one leg of an order.
func (c *Coordinator) lockLeg(hash common.Hash, side order.Side) func() {
	key := legKey{hash: hash, side: side}

	c.mu.Lock()
	l, ok := c.legLocks[key]
	if !ok {
		l = &legLock{}
		c.legLocks[key] = l
	}
	l.refs++
	c.mu.Unlock()

	l.mu.Lock()
	return func() {
		l.mu.Unlock()

		c.mu.Lock()
		l.refs--
		if l.refs == 0 {
			delete(c.legLocks, key)
		}
		c.mu.Unlock()
	}
}

// getOrder loads an order, mapping registry errors to coordinator kinds.
func (c *Coordinator) getOrder(ctx context.Context, op string, hash common.Hash) (*order.Order, error) {
	o, err := c.registry.Get(ctx, hash)
	if errors.Is(err, storage.ErrOrderNotFound) {
		return nil, newError(KindNotFound, op, "order "+hash.Hex()+" not found", nil)
	}
	if err != nil {
		return nil, newError(KindInternal, op, "failed to load order", err)
	}
	return o, nil
}

// adapterFor resolves the adapter serving one leg.
func (c *Coordinator) adapterFor(op string, o *order.Order, side order.Side) (chain.Adapter, error) {
	leg := o.Leg(side)
	a, err := c.chains.Get(leg.ChainID)
	if err != nil {
		return nil, chainError(op, leg.ChainID, side, "chain not configured", err)
	}
	return a, nil
}

// untilTimelock returns the local deadline matching the order timelock.
func (c *Coordinator) untilTimelock(o *order.Order) time.Time {
	return time.Now().Add(time.Unix(o.Timelock, 0).Sub(c.clock()))
}
