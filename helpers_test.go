package noise

import (
	"context"
	"crypto/rand"
	"io"
	"net"
	"testing"

	"github.com/go-i2p/go-noise/protocol"
	"github.com/go-i2p/go-noise/suite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testPSK = []byte("0123456789abcdef0123456789abcdef")

const testProtocol = "Noise_XX_25519_ChaChaPoly_SHA256"

// mockNetAddr implements net.Addr for testing
type mockNetAddr struct {
	network string
	address string
}

func (m *mockNetAddr) Network() string { return m.network }
func (m *mockNetAddr) String() string  { return m.address }

type testKeys struct {
	initiator, responder *suite.Keypair
}

func newTestKeys(t *testing.T, protocolName string) testKeys {
	t.Helper()
	id, err := protocol.ParseProtocolName(protocolName)
	require.NoError(t, err)
	dh, err := suite.NewDH(id.DH)
	require.NoError(t, err)
	a, err := dh.GenerateKeypair(rand.Reader)
	require.NoError(t, err)
	b, err := dh.GenerateKeypair(rand.Reader)
	require.NoError(t, err)
	return testKeys{initiator: a, responder: b}
}

// newConfigs returns initiator and responder configs carrying static keys,
// the peer's static public key and a psk, whether or not the pattern uses them.
func newConfigs(t *testing.T, protocolName string) (*ConnConfig, *ConnConfig) {
	t.Helper()
	keys := newTestKeys(t, protocolName)
	init := NewConnConfig(protocolName, true).
		WithStaticKey(keys.initiator.Private).
		WithRemoteKey(keys.responder.Public).
		WithPSK(testPSK).
		WithPrologue([]byte("test prologue")).
		WithHandshakeRetries(0)
	resp := NewConnConfig(protocolName, false).
		WithStaticKey(keys.responder.Private).
		WithRemoteKey(keys.initiator.Public).
		WithPSK(testPSK).
		WithPrologue([]byte("test prologue")).
		WithHandshakeRetries(0)
	return init, resp
}

// newPipePair wraps both ends of a net.Pipe.
func newPipePair(t *testing.T, initCfg, respCfg *ConnConfig) (*NoiseConn, *NoiseConn) {
	t.Helper()
	c1, c2 := net.Pipe()
	a, err := NewNoiseConn(c1, initCfg)
	require.NoError(t, err)
	b, err := NewNoiseConn(c2, respCfg)
	require.NoError(t, err)
	t.Cleanup(func() {
		a.Close()
		b.Close()
	})
	return a, b
}

// handshakePair runs both sides of the handshake concurrently.
func handshakePair(t *testing.T, a, b *NoiseConn) {
	t.Helper()
	errs := make(chan error, 2)
	go func() { errs <- a.Handshake(context.Background()) }()
	go func() { errs <- b.Handshake(context.Background()) }()
	require.NoError(t, <-errs)
	require.NoError(t, <-errs)
}

// sendRecv writes msg on from and reads it back on to.
func sendRecv(t *testing.T, from, to net.Conn, msg []byte) {
	t.Helper()
	errs := make(chan error, 1)
	go func() {
		_, err := from.Write(msg)
		errs <- err
	}()
	got := make([]byte, len(msg))
	_, err := io.ReadFull(to, got)
	require.NoError(t, err)
	require.NoError(t, <-errs)
	assert.Equal(t, msg, got)
}
