package core_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/ltyfantasy/goapn/core"
)

func TestGateReleasesWaitersOnClose(t *testing.T) {
	g := core.NewGate()
	assert.False(t, g.IsClosed())

	done := make(chan struct{})
	go func() {
		<-g.Wait()
		close(done)
	}()

	select {
	case <-done:
		t.Fatal("waiter released before Close")
	case <-time.After(20 * time.Millisecond):
	}

	g.Close()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("waiter not released after Close")
	}
	assert.True(t, g.IsClosed())
}

func TestGateCloseIsIdempotent(t *testing.T) {
	g := core.NewGate()
	g.Close()
	assert.NotPanics(t, func() {
		g.Close()
		g.Close()
	})
}

func TestGateResetStartsFreshCycle(t *testing.T) {
	g := core.NewGate()
	g.Close()
	assert.True(t, g.IsClosed())

	g.Reset()
	assert.False(t, g.IsClosed())

	select {
	case <-g.Wait():
		t.Fatal("fresh cycle must not already be closed")
	default:
	}
}

func TestNewClosedGateIsImmediatelySatisfied(t *testing.T) {
	g := core.NewClosedGate()
	assert.True(t, g.IsClosed())
}
