package promise_test

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ltyfantasy/goapn/core"
	"github.com/ltyfantasy/goapn/promise"
)

func newReadyStore(t *testing.T) *promise.Store {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "promise.db")
	s, err := promise.New(dbPath)
	require.NoError(t, err)
	require.NoError(t, s.Init(context.Background()))
	return s
}

func enlisted(businessID, apiPath, key string) *core.Request {
	r := core.GET(businessID, apiPath)
	r.Promise = core.PromiseConfig{Enable: true, Key: key}
	return r
}

func TestPromiseSaveAndLoadBusinessRequests(t *testing.T) {
	s := newReadyStore(t)

	require.NoError(t, s.Save(context.Background(), enlisted("orders", "/v1/a", "k1")))
	require.NoError(t, s.Save(context.Background(), enlisted("orders", "/v1/b", "k2")))
	require.NoError(t, s.Save(context.Background(), enlisted("billing", "/v1/c", "k3")))

	got := s.LoadBusinessRequests("orders")
	require.Len(t, got, 2)
	assert.Equal(t, "/v1/a", got[0].APIPath)
	assert.Equal(t, "/v1/b", got[1].APIPath)
}

func TestPromiseLoadBusinessRequestsFiltersByPath(t *testing.T) {
	s := newReadyStore(t)

	require.NoError(t, s.Save(context.Background(), enlisted("orders", "/v1/a", "k1")))
	require.NoError(t, s.Save(context.Background(), enlisted("orders", "/v1/b", "k2")))

	got := s.LoadBusinessRequests("orders", "/v1/b")
	require.Len(t, got, 1)
	assert.Equal(t, "/v1/b", got[0].APIPath)
}

func TestPromiseSaveReplacesSameKeyInPlace(t *testing.T) {
	s := newReadyStore(t)

	first := enlisted("orders", "/v1/a", "k1")
	require.NoError(t, s.Save(context.Background(), first))

	second := enlisted("orders", "/v1/a-updated", "k1")
	require.NoError(t, s.Save(context.Background(), second))

	got := s.LoadBusinessRequests("orders")
	require.Len(t, got, 1)
	assert.Equal(t, "/v1/a-updated", got[0].APIPath)
}

func TestPromiseDeleteRemovesEntry(t *testing.T) {
	s := newReadyStore(t)

	require.NoError(t, s.Save(context.Background(), enlisted("orders", "/v1/a", "k1")))
	require.NoError(t, s.Delete(context.Background(), "orders", "k1"))

	got := s.LoadBusinessRequests("orders")
	assert.Empty(t, got)
}

func TestPromiseSurvivesRestart(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "promise.db")

	s1, err := promise.New(dbPath)
	require.NoError(t, err)
	require.NoError(t, s1.Init(context.Background()))
	require.NoError(t, s1.Save(context.Background(), enlisted("orders", "/v1/a", "k1")))

	s2, err := promise.New(dbPath)
	require.NoError(t, err)
	require.NoError(t, s2.Init(context.Background()))

	got := s2.LoadBusinessRequests("orders")
	require.Len(t, got, 1)
	assert.Equal(t, "/v1/a", got[0].APIPath)
	assert.Equal(t, "k1", got[0].Promise.Key)
}

func TestPromiseStreamBodyRejected(t *testing.T) {
	s := newReadyStore(t)

	r := core.NewRequest("orders", core.MethodPOST, "/v1/upload")
	r.Data = core.NewStreamBody(nil)
	r.Promise = core.PromiseConfig{Enable: true, Key: "k-stream"}

	err := s.Save(context.Background(), r)
	assert.ErrorIs(t, err, core.ErrNotSerializable)
}

func TestPromiseClearEmptiesAllBusinesses(t *testing.T) {
	s := newReadyStore(t)

	require.NoError(t, s.Save(context.Background(), enlisted("orders", "/v1/a", "k1")))
	require.NoError(t, s.Clear(context.Background()))

	assert.Empty(t, s.LoadBusinessRequests("orders"))
}
