package noise

import (
	"net"
	"testing"
	"time"

	"github.com/go-i2p/go-noise/internal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewShutdownManager(t *testing.T) {
	assert.Equal(t, 10*time.Second, NewShutdownManager(10*time.Second).timeout)
	assert.Equal(t, 30*time.Second, NewShutdownManager(0).timeout)
}

func TestShutdownForceClosesConnections(t *testing.T) {
	sm := NewShutdownManager(20 * time.Millisecond)
	initCfg, respCfg := newConfigs(t, testProtocol)
	a, b := newPipePair(t, initCfg, respCfg)
	a.SetShutdownManager(sm)
	b.SetShutdownManager(sm)

	nl, _ := newTestListener(t, testProtocol)
	nl.SetShutdownManager(sm)

	require.NoError(t, sm.Shutdown())
	sm.Wait()

	assert.Error(t, sm.Context().Err())
	assert.Equal(t, internal.StateClosed, a.GetConnectionState())
	assert.Equal(t, internal.StateClosed, b.GetConnectionState())
	assert.True(t, nl.isClosed())

	// Later calls return the first result without doing work again.
	assert.NoError(t, sm.Shutdown())
}

func TestShutdownDrainsConnections(t *testing.T) {
	sm := NewShutdownManager(10 * time.Second)
	initCfg, _ := newConfigs(t, testProtocol)
	c1, c2 := net.Pipe()
	defer c2.Close()
	nc, err := NewNoiseConn(c1, initCfg)
	require.NoError(t, err)
	nc.SetShutdownManager(sm)

	time.AfterFunc(20*time.Millisecond, func() { nc.Close() })

	start := time.Now()
	require.NoError(t, sm.Shutdown())
	assert.Less(t, time.Since(start), 5*time.Second)

	sm.mu.Lock()
	defer sm.mu.Unlock()
	assert.Empty(t, sm.connections)
}

func TestShutdownManagerIgnoresNil(t *testing.T) {
	sm := NewShutdownManager(time.Second)
	sm.RegisterConnection(nil)
	sm.UnregisterConnection(nil)
	sm.RegisterListener(nil)
	sm.UnregisterListener(nil)
	assert.Empty(t, sm.connections)
	assert.Empty(t, sm.listeners)
	assert.NoError(t, sm.Shutdown())
}
