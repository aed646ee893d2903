package plugin

import (
	"context"
	"fmt"
	"log/slog"
	"reflect"
	"sync"
	"time"

	"github.com/xraph/escrow/account"
	"github.com/xraph/escrow/deliverable"
	"github.com/xraph/escrow/refund"
	"github.com/xraph/escrow/types"
)

// DefaultTimeout bounds a single hook call.
const DefaultTimeout = 5 * time.Second

// Registry manages all registered plugins and provides efficient dispatch.
// It uses type-cached discovery for O(1) dispatch performance.
type Registry struct {
	mu      sync.RWMutex
	plugins []Plugin
	logger  *slog.Logger
	timeout time.Duration

	// Type-cached plugin lists for efficient dispatch
	onInit                    []OnInit
	onShutdown                []OnShutdown
	onAccountCreated          []OnAccountCreated
	onAccountDeleted          []OnAccountDeleted
	onTEESignerAcknowledged   []OnTEESignerAcknowledged
	onDeposit                 []OnDeposit
	onRefundRequested         []OnRefundRequested
	onRefundProcessed         []OnRefundProcessed
	onDeliverableAdded        []OnDeliverableAdded
	onDeliverableEvicted      []OnDeliverableEvicted
	onDeliverableAcknowledged []OnDeliverableAcknowledged
	onDeliverableSettled      []OnDeliverableSettled
}

// NewRegistry creates a new plugin registry.
func NewRegistry() *Registry {
	return &Registry{
		logger:  slog.Default(),
		timeout: DefaultTimeout,
	}
}

// WithLogger sets the logger for the registry.
func (r *Registry) WithLogger(logger *slog.Logger) *Registry {
	r.logger = logger
	return r
}

// WithTimeout sets how long a single hook may run.
func (r *Registry) WithTimeout(d time.Duration) *Registry {
	if d > 0 {
		r.timeout = d
	}
	return r
}

// Register adds a plugin to the registry and caches its interfaces.
func (r *Registry) Register(p Plugin) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	// Check for duplicate
	for _, existing := range r.plugins {
		if existing.Name() == p.Name() {
			return fmt.Errorf("plugin: duplicate registration: %s", p.Name())
		}
	}

	r.plugins = append(r.plugins, p)

	// Type-switch to cache interfaces
	if v, ok := p.(OnInit); ok {
		r.onInit = append(r.onInit, v)
	}
	if v, ok := p.(OnShutdown); ok {
		r.onShutdown = append(r.onShutdown, v)
	}
	if v, ok := p.(OnAccountCreated); ok {
		r.onAccountCreated = append(r.onAccountCreated, v)
	}
	if v, ok := p.(OnAccountDeleted); ok {
		r.onAccountDeleted = append(r.onAccountDeleted, v)
	}
	if v, ok := p.(OnTEESignerAcknowledged); ok {
		r.onTEESignerAcknowledged = append(r.onTEESignerAcknowledged, v)
	}
	if v, ok := p.(OnDeposit); ok {
		r.onDeposit = append(r.onDeposit, v)
	}
	if v, ok := p.(OnRefundRequested); ok {
		r.onRefundRequested = append(r.onRefundRequested, v)
	}
	if v, ok := p.(OnRefundProcessed); ok {
		r.onRefundProcessed = append(r.onRefundProcessed, v)
	}
	if v, ok := p.(OnDeliverableAdded); ok {
		r.onDeliverableAdded = append(r.onDeliverableAdded, v)
	}
	if v, ok := p.(OnDeliverableEvicted); ok {
		r.onDeliverableEvicted = append(r.onDeliverableEvicted, v)
	}
	if v, ok := p.(OnDeliverableAcknowledged); ok {
		r.onDeliverableAcknowledged = append(r.onDeliverableAcknowledged, v)
	}
	if v, ok := p.(OnDeliverableSettled); ok {
		r.onDeliverableSettled = append(r.onDeliverableSettled, v)
	}

	r.logger.Info("plugin registered",
		"name", p.Name(),
		"interfaces", implementedInterfaces(p),
	)

	return nil
}

// implementedInterfaces returns the hook interfaces implemented by p.
func implementedInterfaces(p Plugin) []string {
	var interfaces []string
	v := reflect.TypeOf(p)

	checkInterface := func(iface reflect.Type, name string) {
		if v.Implements(iface) {
			interfaces = append(interfaces, name)
		}
	}

	checkInterface(reflect.TypeOf((*OnInit)(nil)).Elem(), "OnInit")
	checkInterface(reflect.TypeOf((*OnShutdown)(nil)).Elem(), "OnShutdown")
	checkInterface(reflect.TypeOf((*OnAccountCreated)(nil)).Elem(), "OnAccountCreated")
	checkInterface(reflect.TypeOf((*OnAccountDeleted)(nil)).Elem(), "OnAccountDeleted")
	checkInterface(reflect.TypeOf((*OnTEESignerAcknowledged)(nil)).Elem(), "OnTEESignerAcknowledged")
	checkInterface(reflect.TypeOf((*OnDeposit)(nil)).Elem(), "OnDeposit")
	checkInterface(reflect.TypeOf((*OnRefundRequested)(nil)).Elem(), "OnRefundRequested")
	checkInterface(reflect.TypeOf((*OnRefundProcessed)(nil)).Elem(), "OnRefundProcessed")
	checkInterface(reflect.TypeOf((*OnDeliverableAdded)(nil)).Elem(), "OnDeliverableAdded")
	checkInterface(reflect.TypeOf((*OnDeliverableEvicted)(nil)).Elem(), "OnDeliverableEvicted")
	checkInterface(reflect.TypeOf((*OnDeliverableAcknowledged)(nil)).Elem(), "OnDeliverableAcknowledged")
	checkInterface(reflect.TypeOf((*OnDeliverableSettled)(nil)).Elem(), "OnDeliverableSettled")

	return interfaces
}

// Get returns a plugin by name.
func (r *Registry) Get(name string) Plugin {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, p := range r.plugins {
		if p.Name() == name {
			return p
		}
	}
	return nil
}

// List returns all registered plugins.
func (r *Registry) List() []Plugin {
	r.mu.RLock()
	defer r.mu.RUnlock()

	result := make([]Plugin, len(r.plugins))
	copy(result, r.plugins)
	return result
}

// Count returns the number of registered plugins.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.plugins)
}

// ──────────────────────────────────────────────────
// Event emission methods
// ──────────────────────────────────────────────────

// EmitInit calls OnInit for all plugins that implement it.
func (r *Registry) EmitInit(ctx context.Context, e interface{}) {
	r.mu.RLock()
	plugins := r.onInit
	r.mu.RUnlock()

	for _, p := range plugins {
		if err := r.callWithTimeout(ctx, p.Name(), func() error {
			return p.OnInit(ctx, e)
		}); err != nil {
			r.logger.Warn("plugin OnInit failed",
				"plugin", p.Name(),
				"error", err,
			)
		}
	}
}

// EmitShutdown calls OnShutdown for all plugins that implement it.
func (r *Registry) EmitShutdown(ctx context.Context) {
	r.mu.RLock()
	plugins := r.onShutdown
	r.mu.RUnlock()

	for _, p := range plugins {
		if err := r.callWithTimeout(ctx, p.Name(), func() error {
			return p.OnShutdown(ctx)
		}); err != nil {
			r.logger.Warn("plugin OnShutdown failed",
				"plugin", p.Name(),
				"error", err,
			)
		}
	}
}

// EmitAccountCreated emits an account created event.
func (r *Registry) EmitAccountCreated(ctx context.Context, a *account.Account) {
	r.mu.RLock()
	plugins := r.onAccountCreated
	r.mu.RUnlock()

	for _, p := range plugins {
		if err := r.callWithTimeout(ctx, p.Name(), func() error {
			return p.OnAccountCreated(ctx, a)
		}); err != nil {
			r.logger.Warn("plugin OnAccountCreated failed",
				"plugin", p.Name(),
				"error", err,
			)
		}
	}
}

// EmitAccountDeleted emits an account deleted event.
func (r *Registry) EmitAccountDeleted(ctx context.Context, key account.Key, nonce uint64) {
	r.mu.RLock()
	plugins := r.onAccountDeleted
	r.mu.RUnlock()

	for _, p := range plugins {
		if err := r.callWithTimeout(ctx, p.Name(), func() error {
			return p.OnAccountDeleted(ctx, key, nonce)
		}); err != nil {
			r.logger.Warn("plugin OnAccountDeleted failed",
				"plugin", p.Name(),
				"error", err,
			)
		}
	}
}

// EmitTEESignerAcknowledged emits a TEE signer acknowledgement event.
func (r *Registry) EmitTEESignerAcknowledged(ctx context.Context, a *account.Account, acknowledged bool) {
	r.mu.RLock()
	plugins := r.onTEESignerAcknowledged
	r.mu.RUnlock()

	for _, p := range plugins {
		if err := r.callWithTimeout(ctx, p.Name(), func() error {
			return p.OnTEESignerAcknowledged(ctx, a, acknowledged)
		}); err != nil {
			r.logger.Warn("plugin OnTEESignerAcknowledged failed",
				"plugin", p.Name(),
				"error", err,
			)
		}
	}
}

// EmitDeposit emits a deposit event.
func (r *Registry) EmitDeposit(ctx context.Context, a *account.Account, amount, cancelled types.Amount) {
	r.mu.RLock()
	plugins := r.onDeposit
	r.mu.RUnlock()

	for _, p := range plugins {
		if err := r.callWithTimeout(ctx, p.Name(), func() error {
			return p.OnDeposit(ctx, a, amount, cancelled)
		}); err != nil {
			r.logger.Warn("plugin OnDeposit failed",
				"plugin", p.Name(),
				"error", err,
			)
		}
	}
}

// EmitRefundRequested emits a refund requested event.
func (r *Registry) EmitRefundRequested(ctx context.Context, a *account.Account, rf refund.Refund) {
	r.mu.RLock()
	plugins := r.onRefundRequested
	r.mu.RUnlock()

	for _, p := range plugins {
		if err := r.callWithTimeout(ctx, p.Name(), func() error {
			return p.OnRefundRequested(ctx, a, rf)
		}); err != nil {
			r.logger.Warn("plugin OnRefundRequested failed",
				"plugin", p.Name(),
				"error", err,
			)
		}
	}
}

// EmitRefundProcessed emits a refund processed event.
func (r *Registry) EmitRefundProcessed(ctx context.Context, a *account.Account, released types.Amount) {
	r.mu.RLock()
	plugins := r.onRefundProcessed
	r.mu.RUnlock()

	for _, p := range plugins {
		if err := r.callWithTimeout(ctx, p.Name(), func() error {
			return p.OnRefundProcessed(ctx, a, released)
		}); err != nil {
			r.logger.Warn("plugin OnRefundProcessed failed",
				"plugin", p.Name(),
				"error", err,
			)
		}
	}
}

// EmitDeliverableAdded emits a deliverable added event.
func (r *Registry) EmitDeliverableAdded(ctx context.Context, key account.Key, d deliverable.Deliverable) {
	r.mu.RLock()
	plugins := r.onDeliverableAdded
	r.mu.RUnlock()

	for _, p := range plugins {
		if err := r.callWithTimeout(ctx, p.Name(), func() error {
			return p.OnDeliverableAdded(ctx, key, d)
		}); err != nil {
			r.logger.Warn("plugin OnDeliverableAdded failed",
				"plugin", p.Name(),
				"error", err,
			)
		}
	}
}

// EmitDeliverableEvicted emits a deliverable evicted event.
func (r *Registry) EmitDeliverableEvicted(ctx context.Context, key account.Key, deliverableID string) {
	r.mu.RLock()
	plugins := r.onDeliverableEvicted
	r.mu.RUnlock()

	for _, p := range plugins {
		if err := r.callWithTimeout(ctx, p.Name(), func() error {
			return p.OnDeliverableEvicted(ctx, key, deliverableID)
		}); err != nil {
			r.logger.Warn("plugin OnDeliverableEvicted failed",
				"plugin", p.Name(),
				"error", err,
			)
		}
	}
}

// EmitDeliverableAcknowledged emits a deliverable acknowledged event.
func (r *Registry) EmitDeliverableAcknowledged(ctx context.Context, key account.Key, deliverableID string) {
	r.mu.RLock()
	plugins := r.onDeliverableAcknowledged
	r.mu.RUnlock()

	for _, p := range plugins {
		if err := r.callWithTimeout(ctx, p.Name(), func() error {
			return p.OnDeliverableAcknowledged(ctx, key, deliverableID)
		}); err != nil {
			r.logger.Warn("plugin OnDeliverableAcknowledged failed",
				"plugin", p.Name(),
				"error", err,
			)
		}
	}
}

// EmitDeliverableSettled emits a deliverable settled event.
func (r *Registry) EmitDeliverableSettled(ctx context.Context, s *deliverable.Settlement) {
	r.mu.RLock()
	plugins := r.onDeliverableSettled
	r.mu.RUnlock()

	for _, p := range plugins {
		if err := r.callWithTimeout(ctx, p.Name(), func() error {
			return p.OnDeliverableSettled(ctx, s)
		}); err != nil {
			r.logger.Warn("plugin OnDeliverableSettled failed",
				"plugin", p.Name(),
				"error", err,
			)
		}
	}
}

// callWithTimeout calls a plugin function with a timeout.
// Plugins should never block the escrow engine.
func (r *Registry) callWithTimeout(ctx context.Context, pluginName string, fn func() error) error {
	done := make(chan error, 1)

	go func() {
		done <- fn()
	}()

	select {
	case err := <-done:
		return err
	case <-time.After(r.timeout):
		return fmt.Errorf("plugin timeout: %s", pluginName)
	case <-ctx.Done():
		return ctx.Err()
	}
}
