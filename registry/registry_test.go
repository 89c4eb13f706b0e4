package registry_test

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ltyfantasy/goapn/core"
	"github.com/ltyfantasy/goapn/registry"
)

type fakeTransport struct{ id string }

func (fakeTransport) Do(context.Context, *http.Request) (*http.Response, []byte, error) {
	return &http.Response{StatusCode: 200}, []byte("{}"), nil
}

func fakeFactory() registry.TransportFactory {
	return func(baseURL string, _, _, _ time.Duration) core.Transport {
		return fakeTransport{id: baseURL}
	}
}

func TestAddBusinessWaitsForGlobalInitGate(t *testing.T) {
	gate := core.NewGate()
	reg := registry.New(gate, fakeFactory())

	done := make(chan error, 1)
	go func() {
		done <- reg.AddBusiness(context.Background(), registry.Business{
			Identifier:  "orders",
			BaseURL:     "https://example.test",
			Interceptor: core.NoopInterceptor{},
			Parser:      core.JSONParser{},
		})
	}()

	select {
	case <-done:
		t.Fatal("AddBusiness must not complete before the global init gate closes")
	case <-time.After(20 * time.Millisecond):
	}

	gate.Close()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("AddBusiness did not complete after global init gate closed")
	}

	require.NoError(t, reg.WaitInit(context.Background(), "orders"))
}

func TestAddBusinessIdempotent(t *testing.T) {
	gate := core.NewClosedGate()
	reg := registry.New(gate, fakeFactory())

	biz := registry.Business{Identifier: "orders", BaseURL: "https://a.test", Interceptor: core.NoopInterceptor{}}
	require.NoError(t, reg.AddBusiness(context.Background(), biz))

	biz2 := registry.Business{Identifier: "orders", BaseURL: "https://b.test", Interceptor: core.NoopInterceptor{}}
	require.NoError(t, reg.AddBusiness(context.Background(), biz2))

	got, ok := reg.Get("orders")
	require.True(t, ok)
	assert.Equal(t, "https://a.test", got.BaseURL, "second AddBusiness call for the same identifier must be a no-op")
}

func TestSuspendBlocksAndResumeReleases(t *testing.T) {
	gate := core.NewClosedGate()
	reg := registry.New(gate, fakeFactory())
	require.NoError(t, reg.AddBusiness(context.Background(), registry.Business{
		Identifier:  "orders",
		BaseURL:     "https://a.test",
		Interceptor: core.NoopInterceptor{},
	}))

	sg, ok := reg.SuspendGate("orders")
	require.True(t, ok)
	assert.True(t, sg.IsClosed(), "a freshly added business must not start suspended")

	reg.Suspend("orders")
	assert.False(t, sg.IsClosed())

	reg.Resume("orders")
	assert.True(t, sg.IsClosed())
}

func TestDoubleSuspendAndDoubleResumeAreNoops(t *testing.T) {
	gate := core.NewClosedGate()
	reg := registry.New(gate, fakeFactory())
	require.NoError(t, reg.AddBusiness(context.Background(), registry.Business{
		Identifier:  "orders",
		BaseURL:     "https://a.test",
		Interceptor: core.NoopInterceptor{},
	}))

	assert.NotPanics(t, func() {
		reg.Suspend("orders")
		reg.Suspend("orders")
		reg.Resume("orders")
		reg.Resume("orders")
	})

	sg, _ := reg.SuspendGate("orders")
	assert.True(t, sg.IsClosed())
}

func TestMockTransportOnlyWhenDebugModeAndConfigured(t *testing.T) {
	gate := core.NewClosedGate()
	reg := registry.New(gate, fakeFactory(), registry.WithDebugMode(true))
	require.NoError(t, reg.AddBusiness(context.Background(), registry.Business{
		Identifier:  "orders",
		BaseURL:     "https://a.test",
		MockBaseURL: "https://mock.test",
		Interceptor: core.NoopInterceptor{},
	}))

	tr, usedMock, ok := reg.Transport("orders", true)
	require.True(t, ok)
	assert.True(t, usedMock)
	assert.Equal(t, fakeTransport{id: "https://mock.test"}, tr)

	tr, usedMock, ok = reg.Transport("orders", false)
	require.True(t, ok)
	assert.False(t, usedMock)
	assert.Equal(t, fakeTransport{id: "https://a.test"}, tr)

	// without debug mode the configured mock base URL is ignored.
	release := registry.New(gate, fakeFactory())
	require.NoError(t, release.AddBusiness(context.Background(), registry.Business{
		Identifier:  "orders",
		BaseURL:     "https://a.test",
		MockBaseURL: "https://mock.test",
		Interceptor: core.NoopInterceptor{},
	}))

	tr, usedMock, ok = release.Transport("orders", true)
	require.True(t, ok)
	assert.False(t, usedMock)
	assert.Equal(t, fakeTransport{id: "https://a.test"}, tr)
}

func TestUnknownBusinessLookupsFail(t *testing.T) {
	reg := registry.New(core.NewClosedGate(), fakeFactory())

	_, ok := reg.Get("ghost")
	assert.False(t, ok)

	err := reg.WaitInit(context.Background(), "ghost")
	assert.ErrorIs(t, err, core.ErrUnknownBusiness)
}
