// Package manager implements the Manager (orchestrator) described by
// spec.md §4.5: the singleton that drives each Request through its
// lifecycle — resolve business, wait for gates, run pre-request hooks,
// call the transport, parse, decide whether to retry, and finalize
// cache/promise state before completing the Request.
package manager

import (
	"bytes"
	"context"
	"fmt"
	"math/rand"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/ltyfantasy/goapn/cache"
	"github.com/ltyfantasy/goapn/core"
	"github.com/ltyfantasy/goapn/promise"
	"github.com/ltyfantasy/goapn/registry"
	"github.com/ltyfantasy/goapn/resilience"
	"github.com/ltyfantasy/goapn/pkg/logger"
)

// Manager is the singleton orchestrator (spec.md §4.5). Construct with
// New; it starts cache.Init then promise.Init in the background and
// closes its global init gate once both finish.
type Manager struct {
	cacheStore   *cache.Store
	promiseStore *promise.Store
	registry     *registry.Registry
	log          logger.Logger

	globalInitGate *core.Gate
}

// Option configures a Manager at construction time.
type Option func(*Manager)

func WithLogger(l logger.Logger) Option { return func(m *Manager) { m.log = l } }

// WithInitGate overrides the Manager's global init gate. Use this when
// the registry was constructed first (registry.New requires the gate
// up front) so both share the same gate instance.
func WithInitGate(gate *core.Gate) Option {
	return func(m *Manager) { m.globalInitGate = gate }
}

// New constructs a Manager over the given cache/promise stores and
// business registry, and kicks off the init sequence described by
// spec.md §4.5: "cache init() then promise init(), then completes the
// global init gate."
func New(cacheStore *cache.Store, promiseStore *promise.Store, reg *registry.Registry, opts ...Option) *Manager {
	m := &Manager{
		cacheStore:     cacheStore,
		promiseStore:   promiseStore,
		registry:       reg,
		log:            logger.NewDefaultLogger(),
		globalInitGate: core.NewGate(),
	}
	for _, opt := range opts {
		opt(m)
	}

	go func() {
		ctx := context.Background()
		if err := m.cacheStore.Init(ctx); err != nil {
			m.log.Error("manager: cache init failed", "error", err)
		}
		if err := m.promiseStore.Init(ctx); err != nil {
			m.log.Error("manager: promise init failed", "error", err)
		}
		m.globalInitGate.Close()
	}()

	return m
}

// GlobalInitGate exposes the gate AddBusiness waits on before
// constructing a business's transport.
func (m *Manager) GlobalInitGate() *core.Gate { return m.globalInitGate }

// Send hands req to the Manager and returns immediately; the caller
// awaits req.Done() for the eventual Response (spec.md §4.5: "send(request)
// -> request... non-blocking handoff").
func (m *Manager) Send(req *core.Request) *core.Request {
	go m.run(context.Background(), req)
	return req
}

// Suspend sets the suspend gate for each named business, or all
// businesses when identifiers is empty.
func (m *Manager) Suspend(identifiers ...string) { m.registry.Suspend(identifiers...) }

// Resume clears the suspend gate for each named business, or all.
func (m *Manager) Resume(identifiers ...string) { m.registry.Resume(identifiers...) }

// CleanData clears the cache, clears the promise store, then notifies
// each registered business's interceptor via OnCleanData (spec.md
// §4.5).
func (m *Manager) CleanData(ctx context.Context) error {
	if err := m.cacheStore.Clear(ctx); err != nil {
		return err
	}
	if err := m.promiseStore.Clear(ctx); err != nil {
		return err
	}
	for _, biz := range m.registry.All() {
		if biz.Interceptor != nil {
			biz.Interceptor.OnCleanData()
		}
	}
	return nil
}

// GetPromiseRequests returns the persisted promise requests for
// businessID, optionally filtered to apiPath ∈ paths, after waiting
// for global init (spec.md §4.5).
func (m *Manager) GetPromiseRequests(ctx context.Context, businessID string, paths ...string) ([]*core.Request, error) {
	select {
	case <-m.globalInitGate.Wait():
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	return m.promiseStore.LoadBusinessRequests(businessID, paths...), nil
}

// run drives one Request through its full lifecycle, re-entering at
// step C on every retry (spec.md §4.5).
func (m *Manager) run(ctx context.Context, req *core.Request) {
	// Step A: resolve business.
	biz, ok := m.registry.Get(req.BusinessIdentifier)
	if !ok {
		_ = req.Complete(&core.Response{Error: core.NewConfigurationError(req.BusinessIdentifier)})
		return
	}

	if req.CancelToken != nil {
		var cancel context.CancelFunc
		ctx, cancel = context.WithCancel(ctx)
		defer cancel()
		go func() {
			select {
			case <-req.CancelToken.Done():
				cancel()
			case <-ctx.Done():
			}
		}()
	}

	// Step B: wait for gates.
	if err := m.awaitGates(ctx, biz, req); err != nil {
		_ = req.Complete(biz.Parser.HandleError(ctx, req, nil, err))
		return
	}

	m.attempt(ctx, biz, req)
}

func (m *Manager) awaitGates(ctx context.Context, biz registry.Business, req *core.Request) error {
	if err := m.registry.WaitInit(ctx, req.BusinessIdentifier); err != nil {
		return err
	}

	gate, ok := m.registry.SuspendGate(req.BusinessIdentifier)
	if ok && !gate.IsClosed() {
		allow := biz.Interceptor != nil && biz.Interceptor.AllowRequestPassWhenSuspend(req)
		if !allow {
			select {
			case <-gate.Wait():
			case <-ctx.Done():
				return ctx.Err()
			}
		}
	}
	return nil
}

// attempt runs steps C-G once, recursing (via a fresh goroutine, after
// the retry delay) when the retry decision calls for another pass.
func (m *Manager) attempt(ctx context.Context, biz registry.Business, req *core.Request) {
	// Step C: pre-request.
	req.RequestStartTime = time.Now()
	if biz.Interceptor != nil {
		biz.Interceptor.OnRequest(req)
	}

	if req.Promise.Enable && req.Promise.Key == "" {
		req.Promise.Key = newPromiseKey(req.BusinessIdentifier, req.APIPath)
		if err := m.promiseStore.Save(ctx, req); err != nil {
			m.log.Warn("manager: promise save failed", "promiseKey", req.Promise.Key, "error", err)
		}
		if biz.Interceptor != nil {
			biz.Interceptor.OnAddToPromise(req)
		}
	}

	if req.Cache.Enable && !req.Cache.IgnoreOnce {
		key, err := req.EnsureMD5Key()
		if err != nil {
			m.log.Warn("manager: md5 key computation failed", "error", err)
		} else if data, hit := m.cacheStore.Load(key, req.Cache.UseLRU); hit {
			if biz.Interceptor != nil {
				biz.Interceptor.OnLoadCache(req, data)
			}
			cached := &core.Response{Data: data}
			if req.Converter != nil {
				if model, err := req.Converter(data); err == nil {
					cached.Model = model
				}
			}
			req.Cache.LastResponse = cached
		}
	}

	// Step D: transport call.
	httpResp, body, transportErr := m.callTransport(ctx, biz, req)

	// Step E: parse.
	var resp *core.Response
	if transportErr == nil {
		var parseErr error
		resp, parseErr = biz.Parser.ParseResponse(ctx, req, httpResp, body)
		if parseErr != nil {
			resp = biz.Parser.HandleError(ctx, req, httpResp, parseErr)
		}
	} else {
		resp = biz.Parser.HandleError(ctx, req, httpResp, transportErr)
	}

	// Step F: retry decision.
	if biz.Interceptor != nil {
		biz.Interceptor.OnResponse(req, resp)
	}

	if m.shouldRetry(biz, req, resp) {
		req.Retry.Count++
		delay := resilience.NextDelay(effectiveRetry(req, biz))
		timer := time.NewTimer(delay)
		go func() {
			defer timer.Stop()
			select {
			case <-timer.C:
				m.attempt(ctx, biz, req)
			case <-ctx.Done():
				_ = req.Complete(biz.Parser.HandleError(ctx, req, nil, ctx.Err()))
			}
		}()
		return
	}

	m.finalize(ctx, biz, req, resp)
}

func effectiveRetry(req *core.Request, biz registry.Business) core.RetryConfig {
	cfg := req.Retry
	if cfg.IntervalMs == 0 {
		cfg.IntervalMs = biz.RetryIntervalMs
	}
	return cfg
}

func (m *Manager) shouldRetry(biz registry.Business, req *core.Request, resp *core.Response) bool {
	if !resilience.ShouldRetry(req.Retry) {
		return false
	}
	if biz.Interceptor == nil {
		return false
	}
	return biz.Interceptor.NeedRetry(req, resp)
}

func (m *Manager) finalize(ctx context.Context, biz registry.Business, req *core.Request, resp *core.Response) {
	if req.Cache.Enable && req.Cache.MD5Key != "" && resp.Error == nil && resp.Data != nil {
		if biz.Interceptor != nil {
			biz.Interceptor.OnSaveCache(req, resp.Data)
		}
		if err := m.cacheStore.Save(ctx, req.Cache.MD5Key, resp.Data, req.Cache.Duration, req.Cache.UseLRU); err != nil {
			m.log.Warn("manager: cache save failed", "key", req.Cache.MD5Key, "error", err)
		}
	}

	if req.Promise.Enable && resp.Error == nil {
		if err := m.promiseStore.Delete(ctx, req.BusinessIdentifier, req.Promise.Key); err != nil {
			m.log.Warn("manager: promise delete failed", "promiseKey", req.Promise.Key, "error", err)
		}
		if biz.Interceptor != nil {
			biz.Interceptor.OnRemoveFromPromise(req)
		}
	}

	if err := req.Complete(resp); err != nil {
		m.log.Warn("manager: completion slot already written", "businessIdentifier", req.BusinessIdentifier, "error", err)
	}
}

func (m *Manager) callTransport(ctx context.Context, biz registry.Business, req *core.Request) (*http.Response, []byte, error) {
	tr, isMock, ok := m.registry.Transport(req.BusinessIdentifier, req.Mock.Enable)
	if !ok || tr == nil {
		return nil, nil, fmt.Errorf("manager: no transport configured for %s", req.BusinessIdentifier)
	}

	base := biz.BaseURL
	path := req.EffectivePath()
	if isMock {
		base = biz.MockBaseURL
		path = req.Mock.EffectivePath()
	}

	fullURL := strings.TrimRight(base, "/") + path
	u, err := url.Parse(fullURL)
	if err != nil {
		return nil, nil, fmt.Errorf("manager: invalid url %s: %w", fullURL, err)
	}

	q := u.Query()
	for k, v := range req.QueryParams {
		q.Set(k, fmt.Sprintf("%v", v))
	}
	u.RawQuery = q.Encode()

	var bodyReader *bytes.Reader
	if req.Data.Serializable() {
		encoded, err := req.Data.Encode()
		if err != nil {
			return nil, nil, err
		}
		bodyReader = bytes.NewReader(encoded)
	} else {
		bodyReader = bytes.NewReader(nil)
	}

	httpReq, err := http.NewRequestWithContext(ctx, string(req.Method), u.String(), bodyReader)
	if err != nil {
		return nil, nil, err
	}
	for k, v := range req.Headers {
		httpReq.Header.Set(k, v)
	}
	if httpReq.Header.Get("Content-Type") == "" && req.ContentType != "" {
		httpReq.Header.Set("Content-Type", req.ContentType)
	}

	return tr.Do(ctx, httpReq)
}

func newPromiseKey(businessID, apiPath string) string {
	name := fmt.Sprintf("%s|%s|%d|%d", businessID, apiPath, time.Now().UnixNano(), rand.Int63())
	return uuid.NewSHA1(uuid.NameSpaceOID, []byte(name)).String()
}
