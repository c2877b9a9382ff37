package noise

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/go-i2p/go-noise/noiseerr"
	"github.com/go-i2p/go-noise/obfs"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// serveEcho accepts connections, completes the handshake and echoes every
// read back to the peer.
func serveEcho(t *testing.T, nl *NoiseListener) {
	t.Helper()
	go func() {
		for {
			conn, err := nl.Accept()
			if err != nil {
				return
			}
			go func(nc *NoiseConn) {
				defer nc.Close()
				if err := nc.Handshake(context.Background()); err != nil {
					return
				}
				buf := make([]byte, 1024)
				for {
					n, err := nc.Read(buf)
					if err != nil {
						return
					}
					if _, err := nc.Write(buf[:n]); err != nil {
						return
					}
				}
			}(conn.(*NoiseConn))
		}
	}()
}

func newTestListener(t *testing.T, protocolName string) (*NoiseListener, testKeys) {
	t.Helper()
	keys := newTestKeys(t, protocolName)
	inner, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	nl, err := WrapListener(inner, NewListenerConfig(protocolName).
		WithStaticKey(keys.responder.Private).
		WithPSK(testPSK).
		WithHandshakeTimeout(5*time.Second))
	require.NoError(t, err)
	t.Cleanup(func() { nl.Close() })
	return nl, keys
}

func TestListenerEcho(t *testing.T) {
	names := []string{
		"Noise_XX_25519_ChaChaPoly_SHA256",
		"Noise_NKpsk2_25519_AESGCM_BLAKE2s",
	}
	for _, name := range names {
		t.Run(name, func(t *testing.T) {
			nl, keys := newTestListener(t, name)
			serveEcho(t, nl)

			assert.Equal(t, "noise+tcp", nl.Addr().Network())
			tcpAddr := nl.Addr().(*NoiseAddr).Underlying().String()

			cfg := NewConnConfig(name, true).
				WithStaticKey(keys.initiator.Private).
				WithRemoteKey(keys.responder.Public).
				WithPSK(testPSK).
				WithHandshakeTimeout(5 * time.Second).
				WithHandshakeRetries(0)
			conn, err := DialNoiseWithHandshake("tcp", tcpAddr, cfg)
			require.NoError(t, err)
			defer conn.Close()

			sendRecv(t, conn, conn, []byte("echo me"))
		})
	}
}

func TestListenerModifiers(t *testing.T) {
	name := "Noise_IK_25519_ChaChaPoly_SHA256"
	keys := newTestKeys(t, name)
	inner, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	pad, err := obfs.NewPaddingModifier("pad", 0, 128)
	require.NoError(t, err)
	nl, err := NewNoiseListener(inner, NewListenerConfig(name).
		WithStaticKey(keys.responder.Private).
		WithModifiers(pad).
		WithLengthObfuscation(true))
	require.NoError(t, err)
	defer nl.Close()
	serveEcho(t, nl)

	clientPad, err := obfs.NewPaddingModifier("pad", 0, 128)
	require.NoError(t, err)
	cfg := NewConnConfig(name, true).
		WithStaticKey(keys.initiator.Private).
		WithRemoteKey(keys.responder.Public).
		WithModifiers(clientPad).
		WithLengthObfuscation(true).
		WithHandshakeRetries(0)
	conn, err := DialNoiseWithHandshakeContext(context.Background(), "tcp", inner.Addr().String(), cfg)
	require.NoError(t, err)
	defer conn.Close()

	for i := 0; i < 3; i++ {
		sendRecv(t, conn, conn, []byte("padded and masked"))
	}
}

func TestListenerModifierFactory(t *testing.T) {
	const clients = 4
	newAES := func() obfs.Modifier {
		m, err := obfs.NewAESModifier("aes", bytes.Repeat([]byte{9}, 32), bytes.Repeat([]byte{4}, 16))
		require.NoError(t, err)
		return m
	}

	keys := newTestKeys(t, testProtocol)
	inner, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	var calls atomic.Int32
	nl, err := NewNoiseListener(inner, NewListenerConfig(testProtocol).
		WithStaticKey(keys.responder.Private).
		WithModifierFactory(func() []obfs.Modifier {
			calls.Add(1)
			return []obfs.Modifier{newAES()}
		}))
	require.NoError(t, err)
	defer nl.Close()
	// Validate and the startup handshake check each build one chain.
	assert.Equal(t, int32(2), calls.Load())
	serveEcho(t, nl)

	var wg sync.WaitGroup
	errs := make(chan error, clients)
	for i := 0; i < clients; i++ {
		cfg := NewConnConfig(testProtocol, true).
			WithStaticKey(keys.initiator.Private).
			WithModifiers(newAES()).
			WithHandshakeRetries(0)
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			conn, err := DialNoiseWithHandshakeContext(context.Background(), "tcp", inner.Addr().String(), cfg)
			if err != nil {
				errs <- err
				return
			}
			defer conn.Close()
			msg := []byte(fmt.Sprintf("client %d", i))
			if _, err := conn.Write(msg); err != nil {
				errs <- err
				return
			}
			buf := make([]byte, len(msg))
			if _, err := io.ReadFull(conn, buf); err != nil {
				errs <- err
				return
			}
			if !bytes.Equal(msg, buf) {
				errs <- fmt.Errorf("client %d: echoed %q", i, buf)
			}
		}(i)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		assert.NoError(t, err)
	}
	assert.Equal(t, int32(2+clients), calls.Load())
}

func TestNewNoiseListenerValidation(t *testing.T) {
	inner, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer inner.Close()

	_, err = NewNoiseListener(nil, NewListenerConfig(testProtocol))
	assert.ErrorIs(t, err, noiseerr.ErrInvalidParam)
	_, err = NewNoiseListener(inner, nil)
	assert.ErrorIs(t, err, noiseerr.ErrInvalidParam)
	_, err = NewNoiseListener(inner, NewListenerConfig("Noise_QQ_25519_ChaChaPoly_SHA256"))
	assert.ErrorIs(t, err, noiseerr.ErrUnknownName)
	_, err = NewNoiseListener(inner, NewListenerConfig(testProtocol))
	assert.ErrorIs(t, err, noiseerr.ErrLocalKeyRequired)
	_, err = NewNoiseListener(inner, NewListenerConfig(testProtocol).
		WithStaticKey(make([]byte, 32)).
		WithHandshakeTimeout(0))
	assert.Error(t, err)
}

func TestListenerConfigBuilders(t *testing.T) {
	key := make([]byte, 32)
	lc := NewListenerConfig(testProtocol).
		WithStaticKey(key).
		WithPSK(testPSK).
		WithPrologue([]byte("p")).
		WithReadTimeout(time.Second).
		WithWriteTimeout(2 * time.Second).
		WithModifiers(obfs.NewXORModifier("xor", nil)).
		WithLengthObfuscation(true)
	key[0] = 1

	cc := lc.connConfig()
	assert.False(t, cc.Initiator)
	assert.Equal(t, byte(0), cc.StaticKey[0])
	assert.Equal(t, testPSK, cc.PSK)
	assert.Equal(t, []byte("p"), cc.Prologue)
	assert.Equal(t, time.Second, cc.ReadTimeout)
	assert.Equal(t, 2*time.Second, cc.WriteTimeout)
	assert.Equal(t, 0, cc.HandshakeRetries)
	assert.True(t, cc.ObfuscateLengths)
	assert.Len(t, cc.Modifiers, 1)

	lc.WithModifierFactory(func() []obfs.Modifier {
		return []obfs.Modifier{obfs.NewXORModifier("fresh", []byte{1})}
	})
	first, second := lc.connConfig(), lc.connConfig()
	require.Len(t, first.Modifiers, 1)
	assert.Equal(t, "fresh", first.Modifiers[0].Name())
	assert.NotSame(t, first.Modifiers[0], second.Modifiers[0])
}

func TestListenerClose(t *testing.T) {
	nl, _ := newTestListener(t, testProtocol)

	require.NoError(t, nl.Close())
	require.NoError(t, nl.Close())

	_, err := nl.Accept()
	assert.ErrorIs(t, err, net.ErrClosed)
}
