package manager_test

import (
	"context"
	"net/http"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ltyfantasy/goapn/cache"
	"github.com/ltyfantasy/goapn/core"
	"github.com/ltyfantasy/goapn/manager"
	"github.com/ltyfantasy/goapn/promise"
	"github.com/ltyfantasy/goapn/registry"
)

type scriptedTransport struct {
	calls     int32
	responses []func() (*http.Response, []byte, error)
}

func (t *scriptedTransport) Do(context.Context, *http.Request) (*http.Response, []byte, error) {
	i := atomic.AddInt32(&t.calls, 1) - 1
	if int(i) >= len(t.responses) {
		return t.responses[len(t.responses)-1]()
	}
	return t.responses[i]()
}

func okResponse(body string) func() (*http.Response, []byte, error) {
	return func() (*http.Response, []byte, error) {
		return &http.Response{StatusCode: 200, Header: http.Header{}}, []byte(body), nil
	}
}

func failResponse() func() (*http.Response, []byte, error) {
	return func() (*http.Response, []byte, error) {
		return &http.Response{StatusCode: 500, Header: http.Header{}}, []byte(`{"error":"boom"}`), nil
	}
}

type retryOn5xxInterceptor struct{ core.NoopInterceptor }

func (retryOn5xxInterceptor) NeedRetry(_ *core.Request, resp *core.Response) bool {
	return resp.Error != nil
}

func newTestEnv(t *testing.T, tr core.Transport) (*manager.Manager, *registry.Registry, *cache.Store, *promise.Store) {
	t.Helper()

	cacheStore, err := cache.New(filepath.Join(t.TempDir(), "cache.db"))
	require.NoError(t, err)
	promiseStore, err := promise.New(filepath.Join(t.TempDir(), "promise.db"))
	require.NoError(t, err)

	gate := core.NewGate()
	factory := func(baseURL string, _, _, _ time.Duration) core.Transport { return tr }
	reg := registry.New(gate, factory)
	mgr := manager.New(cacheStore, promiseStore, reg, manager.WithInitGate(gate))

	return mgr, reg, cacheStore, promiseStore
}

func waitDone(t *testing.T, req *core.Request) *core.Response {
	t.Helper()
	select {
	case resp := <-req.Done():
		return resp
	case <-time.After(2 * time.Second):
		t.Fatal("request did not complete in time")
		return nil
	}
}

func TestUnknownBusinessCompletesWithConfigurationError(t *testing.T) {
	mgr, _, _, _ := newTestEnv(t, &scriptedTransport{responses: []func() (*http.Response, []byte, error){okResponse("{}")}})

	req := core.GET("ghost", "/v1/x")
	mgr.Send(req)

	resp := waitDone(t, req)
	require.False(t, resp.Success())
	assert.Equal(t, core.ErrCodeConfiguration, resp.Error.Code)
}

func TestSuccessfulRequestCompletes(t *testing.T) {
	tr := &scriptedTransport{responses: []func() (*http.Response, []byte, error){okResponse(`{"ok":true}`)}}
	mgr, reg, _, _ := newTestEnv(t, tr)

	require.NoError(t, reg.AddBusiness(context.Background(), registry.Business{
		Identifier:  "orders",
		BaseURL:     "https://orders.test",
		Parser:      core.JSONParser{},
		Interceptor: core.NoopInterceptor{},
	}))
	require.NoError(t, reg.WaitInit(context.Background(), "orders"))

	req := core.GET("orders", "/v1/orders")
	mgr.Send(req)

	resp := waitDone(t, req)
	require.True(t, resp.Success())
	assert.Equal(t, true, resp.Data["ok"])
	assert.Equal(t, int32(1), atomic.LoadInt32(&tr.calls))
}

func TestRetryLimitStopsAfterMax(t *testing.T) {
	tr := &scriptedTransport{responses: []func() (*http.Response, []byte, error){
		failResponse(), failResponse(), failResponse(),
	}}
	mgr, reg, _, _ := newTestEnv(t, tr)

	require.NoError(t, reg.AddBusiness(context.Background(), registry.Business{
		Identifier:      "orders",
		BaseURL:         "https://orders.test",
		Parser:          core.JSONParser{},
		Interceptor:     retryOn5xxInterceptor{},
		RetryIntervalMs: 1,
	}))
	require.NoError(t, reg.WaitInit(context.Background(), "orders"))

	req := core.GET("orders", "/v1/orders")
	req.Retry = core.RetryConfig{Type: core.RetryLimit, Max: 2, IntervalMs: 1}
	mgr.Send(req)

	resp := waitDone(t, req)
	require.False(t, resp.Success())
	// initial attempt + 2 retries = 3 transport calls total.
	assert.Equal(t, int32(3), atomic.LoadInt32(&tr.calls))
}

func TestRetrySucceedsBeforeLimit(t *testing.T) {
	tr := &scriptedTransport{responses: []func() (*http.Response, []byte, error){
		failResponse(), okResponse(`{"ok":true}`),
	}}
	mgr, reg, _, _ := newTestEnv(t, tr)

	require.NoError(t, reg.AddBusiness(context.Background(), registry.Business{
		Identifier:      "orders",
		BaseURL:         "https://orders.test",
		Parser:          core.JSONParser{},
		Interceptor:     retryOn5xxInterceptor{},
		RetryIntervalMs: 1,
	}))
	require.NoError(t, reg.WaitInit(context.Background(), "orders"))

	req := core.GET("orders", "/v1/orders")
	req.Retry = core.RetryConfig{Type: core.RetryLimit, Max: 5, IntervalMs: 1}
	mgr.Send(req)

	resp := waitDone(t, req)
	require.True(t, resp.Success())
	assert.Equal(t, int32(2), atomic.LoadInt32(&tr.calls))
}

func TestCacheWriteOnSuccessAndHitOnReplay(t *testing.T) {
	tr := &scriptedTransport{responses: []func() (*http.Response, []byte, error){
		okResponse(`{"ok":true}`), okResponse(`{"ok":false}`),
	}}
	mgr, reg, cacheStore, _ := newTestEnv(t, tr)

	require.NoError(t, reg.AddBusiness(context.Background(), registry.Business{
		Identifier:  "orders",
		BaseURL:     "https://orders.test",
		Parser:      core.JSONParser{},
		Interceptor: core.NoopInterceptor{},
	}))
	require.NoError(t, reg.WaitInit(context.Background(), "orders"))

	req := core.GET("orders", "/v1/orders")
	req.Cache = core.CacheConfig{Enable: true, UseLRU: true}
	mgr.Send(req)
	resp := waitDone(t, req)
	require.True(t, resp.Success())

	key, err := req.EnsureMD5Key()
	require.NoError(t, err)
	data, ok := cacheStore.Load(key, true)
	require.True(t, ok)
	assert.Equal(t, true, data["ok"])

	// replaying the same request stashes the cached data before the
	// network call, whose own response differs.
	replay := core.GET("orders", "/v1/orders")
	replay.Cache = core.CacheConfig{Enable: true, UseLRU: true}
	mgr.Send(replay)
	require.True(t, waitDone(t, replay).Success())
	require.NotNil(t, replay.Cache.LastResponse)
	assert.Equal(t, true, replay.Cache.LastResponse.Data["ok"])
}

func TestPromiseEnlistmentOnSend(t *testing.T) {
	tr := &scriptedTransport{responses: []func() (*http.Response, []byte, error){okResponse(`{"ok":true}`)}}
	mgr, reg, _, promiseStore := newTestEnv(t, tr)

	require.NoError(t, reg.AddBusiness(context.Background(), registry.Business{
		Identifier:  "orders",
		BaseURL:     "https://orders.test",
		Parser:      core.JSONParser{},
		Interceptor: core.NoopInterceptor{},
	}))
	require.NoError(t, reg.WaitInit(context.Background(), "orders"))

	req := core.GET("orders", "/v1/orders")
	req.Promise = core.PromiseConfig{Enable: true}
	mgr.Send(req)

	resp := waitDone(t, req)
	require.True(t, resp.Success())
	assert.NotEmpty(t, req.Promise.Key, "sending must enlist the request under a promise key")

	// on success the promise record is removed again.
	got := promiseStore.LoadBusinessRequests("orders")
	assert.Empty(t, got)
}

func TestSuspendBlocksRequestUntilResume(t *testing.T) {
	tr := &scriptedTransport{responses: []func() (*http.Response, []byte, error){okResponse(`{"ok":true}`)}}
	mgr, reg, _, _ := newTestEnv(t, tr)

	require.NoError(t, reg.AddBusiness(context.Background(), registry.Business{
		Identifier:  "orders",
		BaseURL:     "https://orders.test",
		Parser:      core.JSONParser{},
		Interceptor: core.NoopInterceptor{},
	}))
	require.NoError(t, reg.WaitInit(context.Background(), "orders"))

	mgr.Suspend("orders")

	req := core.GET("orders", "/v1/orders")
	mgr.Send(req)

	select {
	case <-req.Done():
		t.Fatal("request must not complete while suspended")
	case <-time.After(30 * time.Millisecond):
	}

	mgr.Resume("orders")

	resp := waitDone(t, req)
	assert.True(t, resp.Success())
}

func TestCleanDataClearsCacheAndPromise(t *testing.T) {
	tr := &scriptedTransport{responses: []func() (*http.Response, []byte, error){okResponse(`{"ok":true}`)}}
	mgr, reg, cacheStore, promiseStore := newTestEnv(t, tr)

	require.NoError(t, reg.AddBusiness(context.Background(), registry.Business{
		Identifier:  "orders",
		BaseURL:     "https://orders.test",
		Parser:      core.JSONParser{},
		Interceptor: core.NoopInterceptor{},
	}))
	require.NoError(t, reg.WaitInit(context.Background(), "orders"))

	req := core.GET("orders", "/v1/orders")
	req.Cache = core.CacheConfig{Enable: true, UseLRU: true}
	mgr.Send(req)
	require.True(t, waitDone(t, req).Success())

	pending := core.GET("orders", "/v1/pending")
	pending.Promise = core.PromiseConfig{Enable: true, Key: "pending-key"}
	require.NoError(t, promiseStore.Save(context.Background(), pending))
	require.Len(t, promiseStore.LoadBusinessRequests("orders"), 1)

	require.NoError(t, mgr.CleanData(context.Background()))

	key, err := req.EnsureMD5Key()
	require.NoError(t, err)
	_, ok := cacheStore.Load(key, true)
	assert.False(t, ok)
	assert.Empty(t, promiseStore.LoadBusinessRequests("orders"))
}
