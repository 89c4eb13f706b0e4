// Package registry implements the business registry described by
// spec.md §4.4: per-business static configuration plus a runtime
// record of gates and transports, grounded on gomind's
// core/discovery.go service-registration shape but kept process-local
// rather than backed by an external discovery service.
package registry

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/ltyfantasy/goapn/core"
	"github.com/ltyfantasy/goapn/pkg/logger"
)

// Business is a business line's static configuration (spec.md §4.4).
type Business struct {
	Identifier       string
	BaseURL          string
	MockBaseURL      string
	Interceptor      core.Interceptor
	Parser           core.Parser
	ConnectTimeout   time.Duration
	SendTimeout      time.Duration
	RecvTimeout      time.Duration
	RetryIntervalMs  int
}

// runtime is the sibling record created for each registered business
// (spec.md §4.4: "{ initGate, transport, mockTransport?, suspendGate? }").
type runtime struct {
	initGate    *core.Gate
	suspendGate *core.Gate
	transport   core.Transport
	mockTr      core.Transport
}

// TransportFactory builds a business's Transport from its base URL and
// timeouts. Supplying this as a function (rather than hard-wiring
// transport.RetryableHTTPTransport) keeps registry free of a direct
// dependency on the transport package and lets tests substitute a fake.
type TransportFactory func(baseURL string, connectTimeout, sendTimeout, recvTimeout time.Duration) core.Transport

// Registry is the process-local business registry (spec.md §4.4).
type Registry struct {
	log             logger.Logger
	newTransport    TransportFactory
	globalInitGate  *core.Gate
	debugMode       bool
	broadcaster     SuspendBroadcaster

	mu         sync.RWMutex
	businesses map[string]*Business
	runtimes   map[string]*runtime
}

// New constructs a Registry. globalInitGate is the Manager's global
// init gate; AddBusiness blocks on it before building transports
// (spec.md §4.4). debugMode gates whether a mock transport is built.
func New(globalInitGate *core.Gate, newTransport TransportFactory, opts ...Option) *Registry {
	r := &Registry{
		log:            logger.NewDefaultLogger(),
		newTransport:   newTransport,
		globalInitGate: globalInitGate,
		broadcaster:    localBroadcaster{},
		businesses:     make(map[string]*Business),
		runtimes:       make(map[string]*runtime),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Option configures a Registry at construction time.
type Option func(*Registry)

func WithLogger(l logger.Logger) Option { return func(r *Registry) { r.log = l } }
func WithDebugMode(debug bool) Option   { return func(r *Registry) { r.debugMode = debug } }
func WithSuspendBroadcaster(b SuspendBroadcaster) Option {
	return func(r *Registry) { r.broadcaster = b }
}

// AddBusiness registers biz, idempotently, and blocks until its
// runtime record is fully initialized (spec.md §4.4's ordered steps).
func (r *Registry) AddBusiness(ctx context.Context, biz Business) error {
	r.mu.Lock()
	if _, exists := r.businesses[biz.Identifier]; exists {
		r.mu.Unlock()
		return nil
	}
	rt := &runtime{initGate: core.NewGate(), suspendGate: core.NewClosedGate()}
	r.businesses[biz.Identifier] = &biz
	r.runtimes[biz.Identifier] = rt
	r.mu.Unlock()

	select {
	case <-r.globalInitGate.Wait():
	case <-ctx.Done():
		return ctx.Err()
	}

	if biz.Interceptor != nil {
		if err := biz.Interceptor.InitialData(ctx); err != nil {
			return core.NewOpError("registry.AddBusiness", biz.Identifier, err)
		}
	}

	rt.transport = r.newTransport(biz.BaseURL, biz.ConnectTimeout, biz.SendTimeout, biz.RecvTimeout)
	if biz.Interceptor != nil {
		biz.Interceptor.SetupTransport(rt.transport, false)
	}

	if biz.MockBaseURL != "" && r.debugMode {
		rt.mockTr = r.newTransport(biz.MockBaseURL, biz.ConnectTimeout, biz.SendTimeout, biz.RecvTimeout)
		if biz.Interceptor != nil {
			biz.Interceptor.SetupTransport(rt.mockTr, true)
		}
	}

	rt.initGate.Close()
	r.log.Info("registry: business initialized", "businessIdentifier", biz.Identifier)
	return nil
}

// Get returns a business's static config, or false if unregistered.
func (r *Registry) Get(identifier string) (Business, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	b, ok := r.businesses[identifier]
	if !ok {
		return Business{}, false
	}
	return *b, true
}

func (r *Registry) runtimeFor(identifier string) (*runtime, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	rt, ok := r.runtimes[identifier]
	return rt, ok
}

// WaitInit blocks until identifier's init gate completes.
func (r *Registry) WaitInit(ctx context.Context, identifier string) error {
	rt, ok := r.runtimeFor(identifier)
	if !ok {
		return core.NewOpError("registry.WaitInit", identifier, core.ErrUnknownBusiness)
	}
	select {
	case <-rt.initGate.Wait():
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Transport returns the business's normal or mock transport (mock only
// when useMock is true and one was configured) plus a bool reporting
// whether a mock transport was actually used.
func (r *Registry) Transport(identifier string, useMock bool) (core.Transport, bool, bool) {
	rt, ok := r.runtimeFor(identifier)
	if !ok {
		return nil, false, false
	}
	if useMock && r.debugMode && rt.mockTr != nil {
		return rt.mockTr, true, true
	}
	return rt.transport, false, true
}

// SuspendGate returns the business's current suspend gate.
func (r *Registry) SuspendGate(identifier string) (*core.Gate, bool) {
	rt, ok := r.runtimeFor(identifier)
	if !ok {
		return nil, false
	}
	return rt.suspendGate, true
}

// Suspend closes off the suspend gate for each named identifier (or
// every registered business, when identifiers is empty), blocking
// requests at step B until Resume. Double-suspend is a no-op (spec.md
// §4.5). A fresh gate is installed so a later Resume releases only
// waiters from this suspend cycle.
func (r *Registry) Suspend(identifiers ...string) {
	r.forEachTarget(identifiers, func(rt *runtime) {
		if rt.suspendGate.IsClosed() {
			rt.suspendGate.Reset()
		}
	})
	r.broadcaster.PublishSuspend(identifiers)
}

// Resume releases the suspend gate for each named identifier (or all),
// letting any requests parked at step B proceed. Double-resume is a
// no-op.
func (r *Registry) Resume(identifiers ...string) {
	r.forEachTarget(identifiers, func(rt *runtime) {
		if !rt.suspendGate.IsClosed() {
			rt.suspendGate.Close()
		}
	})
	r.broadcaster.PublishResume(identifiers)
}

func (r *Registry) forEachTarget(identifiers []string, fn func(*runtime)) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if len(identifiers) == 0 {
		for _, rt := range r.runtimes {
			fn(rt)
		}
		return
	}
	for _, id := range identifiers {
		if rt, ok := r.runtimes[id]; ok {
			fn(rt)
		}
	}
}

// All returns every registered business's static config.
func (r *Registry) All() []Business {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Business, 0, len(r.businesses))
	for _, b := range r.businesses {
		out = append(out, *b)
	}
	return out
}

// DefaultTransportFactory returns a placeholder factory whose transports
// answer every request with status 200 and an empty JSON object;
// production callers pass transport.NewFactory().
func DefaultTransportFactory() TransportFactory {
	return func(baseURL string, connectTimeout, sendTimeout, recvTimeout time.Duration) core.Transport {
		return noopTransport{}
	}
}

type noopTransport struct{}

func (noopTransport) Do(_ context.Context, _ *http.Request) (*http.Response, []byte, error) {
	return &http.Response{StatusCode: 200, Header: http.Header{}}, []byte("{}"), nil
}
