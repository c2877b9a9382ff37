package noise

import (
	"context"
	"encoding/binary"
	"errors"
	"io"
	"net"
	"sync"
	"time"

	"github.com/go-i2p/go-noise/handshake"
	"github.com/go-i2p/go-noise/internal"
	"github.com/go-i2p/go-noise/noiseerr"
	"github.com/go-i2p/go-noise/obfs"
	"github.com/go-i2p/logger"
	"github.com/samber/oops"
	"github.com/sirupsen/logrus"
)

const (
	frameHeaderLen = 2

	// lengthMaskLabel selects the exported key behind the length masks.
	lengthMaskLabel = "noise length mask"
)

// NoiseConn implements net.Conn with Noise Protocol encryption.
// Every handshake and transport message is sent as a frame with a 2-byte
// big-endian length prefix.
type NoiseConn struct {
	// underlying is the wrapped network connection
	underlying net.Conn

	// config contains the Noise protocol configuration
	config *ConnConfig

	// handshakeState drives the handshake; nil once it has split
	handshakeState *handshake.HandshakeState

	// send and recv are the transport cipher states after the split.
	// One-way patterns leave the unused direction nil.
	send *handshake.CipherState
	recv *handshake.CipherState

	// handshakeHash is the channel binding value of the completed handshake
	handshakeHash []byte

	// remoteStatic is the peer's static public key, if the pattern provides one
	remoteStatic []byte

	// chain transforms handshake messages on the wire
	chain *obfs.Chain

	// lengths masks transport frame lengths when enabled
	lengths *obfs.SipHashLengthModifier

	// pending holds decrypted bytes not yet returned by Read
	pending []byte

	localAddr  *NoiseAddr
	remoteAddr *NoiseAddr

	// state tracks the connection lifecycle
	state internal.ConnState

	// metrics tracks connection performance data
	metrics *internal.Metrics

	stateMutex     sync.RWMutex
	handshakeMutex sync.Mutex
	readMutex      sync.Mutex
	writeMutex     sync.Mutex
	closeMutex     sync.Mutex

	logger *logger.Logger

	// shutdownManager for coordinated shutdown (optional)
	shutdownManager *ShutdownManager
}

// NewNoiseConn creates a new NoiseConn wrapping the underlying connection.
// The handshake must be completed before using Read/Write operations.
func NewNoiseConn(underlying net.Conn, config *ConnConfig) (*NoiseConn, error) {
	if err := validateNewConnParams(underlying, config); err != nil {
		return nil, err
	}

	hs, err := createHandshakeState(config)
	if err != nil {
		return nil, err
	}

	localAddr, remoteAddr := createNoiseAddresses(underlying, config)

	nc := &NoiseConn{
		underlying:     underlying,
		config:         config,
		handshakeState: hs,
		chain:          config.GetModifierChain(),
		localAddr:      localAddr,
		remoteAddr:     remoteAddr,
		logger:         log,
		metrics:        internal.NewMetrics(),
		state:          internal.StateInit,
	}

	nc.logger.WithFields(logrus.Fields{
		"protocol": config.ProtocolName,
		"role":     config.Role().String(),
	}).Debug("NoiseConn created")
	return nc, nil
}

// validateNewConnParams validates the parameters for creating a new NoiseConn.
func validateNewConnParams(underlying net.Conn, config *ConnConfig) error {
	if underlying == nil {
		return oops.
			Code("INVALID_CONN").
			In("noise").
			Wrapf(noiseerr.ErrInvalidParam, "underlying connection cannot be nil")
	}

	if config == nil {
		return oops.
			Code("INVALID_CONFIG").
			In("noise").
			Wrapf(noiseerr.ErrInvalidParam, "config cannot be nil")
	}

	if err := config.Validate(); err != nil {
		return oops.
			Code("INVALID_CONFIG").
			In("noise").
			Wrapf(err, "config validation failed")
	}

	return nil
}

// createHandshakeState creates a fresh handshake state from the config.
func createHandshakeState(config *ConnConfig) (*handshake.HandshakeState, error) {
	hs, err := handshake.NewHandshakeState(config.handshakeConfig())
	if err != nil {
		return nil, oops.
			Code("HANDSHAKE_INIT_FAILED").
			In("noise").
			With("protocol", config.ProtocolName).
			With("initiator", config.Initiator).
			Wrapf(err, "failed to create handshake state")
	}
	return hs, nil
}

// createNoiseAddresses creates local and remote Noise addresses.
func createNoiseAddresses(underlying net.Conn, config *ConnConfig) (*NoiseAddr, *NoiseAddr) {
	local := config.Role()
	remote := handshake.RoleInitiator
	if local == handshake.RoleInitiator {
		remote = handshake.RoleResponder
	}
	return NewNoiseAddr(underlying.LocalAddr(), config.ProtocolName, local.String()),
		NewNoiseAddr(underlying.RemoteAddr(), config.ProtocolName, remote.String())
}

// Handshake performs the Noise Protocol handshake.
// This must be called before using Read/Write operations. On failure the
// connection returns to the init state with a fresh handshake state, so a
// retry starts from the first message.
func (nc *NoiseConn) Handshake(ctx context.Context) error {
	nc.handshakeMutex.Lock()
	defer nc.handshakeMutex.Unlock()

	switch state := nc.getState(); {
	case state == internal.StateEstablished:
		return nil
	case state.Terminal():
		return nc.stateError("HANDSHAKE_UNAVAILABLE", "handshake not possible")
	}

	nc.setState(internal.StateHandshaking)
	nc.metrics.HandshakeStarted()
	nc.logger.WithFields(logrus.Fields{
		"protocol": nc.config.ProtocolName,
		"role":     nc.config.Role().String(),
	}).Info("Starting Noise handshake")

	ctx, cancel := context.WithTimeout(ctx, nc.config.HandshakeTimeout)
	defer cancel()
	release := nc.bindContext(ctx)
	err := nc.runHandshake(ctx)
	release()

	if err != nil {
		nc.resetHandshake()
		return err
	}

	nc.markHandshakeComplete()
	return nil
}

// bindContext makes blocking I/O on the underlying connection honour ctx.
// The returned function must be called once the handshake I/O is done.
func (nc *NoiseConn) bindContext(ctx context.Context) func() {
	if deadline, ok := ctx.Deadline(); ok {
		_ = nc.underlying.SetDeadline(deadline)
	}

	done := make(chan struct{})
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		select {
		case <-ctx.Done():
			_ = nc.underlying.SetDeadline(time.Unix(1, 0))
		case <-done:
		}
	}()

	return func() {
		close(done)
		wg.Wait()
		_ = nc.underlying.SetDeadline(time.Time{})
	}
}

// runHandshake exchanges messages until the handshake state is ready to split.
func (nc *NoiseConn) runHandshake(ctx context.Context) error {
	hs := nc.handshakeState
	for {
		var err error
		switch action := hs.Action(); action {
		case handshake.ActionWriteMessage:
			err = nc.writeHandshakeMessage(hs)
		case handshake.ActionReadMessage:
			err = nc.readHandshakeMessage(hs)
		case handshake.ActionSplit:
			return nc.split(hs)
		default:
			return oops.
				Code("HANDSHAKE_FAILED").
				In("noise").
				With("action", action.String()).
				With("state", hs.State().String()).
				Wrapf(noiseerr.ErrInvalidState, "unexpected handshake action")
		}
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return oops.
					Code("HANDSHAKE_TIMEOUT").
					In("noise").
					With("message_index", hs.MessageIndex()).
					Wrapf(ctxErr, "handshake interrupted: %v", err)
			}
			return err
		}
	}
}

func (nc *NoiseConn) writeHandshakeMessage(hs *handshake.HandshakeState) error {
	index := hs.MessageIndex()
	msg, err := hs.WriteMessage(nil)
	if err != nil {
		return oops.
			Code("WRITE_MESSAGE_FAILED").
			In("noise").
			With("message_index", index).
			Wrapf(err, "failed to write handshake message")
	}

	if nc.chain != nil {
		if msg, err = nc.chain.ModifyOutbound(obfs.PhaseForMessage(index), msg); err != nil {
			return err
		}
	}

	if err := nc.writeFrame(msg, false); err != nil {
		return oops.
			Code("SEND_MESSAGE_FAILED").
			In("noise").
			With("message_index", index).
			Wrapf(err, "failed to send handshake message")
	}
	return nil
}

func (nc *NoiseConn) readHandshakeMessage(hs *handshake.HandshakeState) error {
	index := hs.MessageIndex()
	msg, err := nc.readFrame(false)
	if err != nil {
		return oops.
			Code("READ_MESSAGE_FAILED").
			In("noise").
			With("message_index", index).
			Wrapf(err, "failed to read handshake message")
	}

	if nc.chain != nil {
		if msg, err = nc.chain.ModifyInbound(obfs.PhaseForMessage(index), msg); err != nil {
			return err
		}
	}

	if _, err := hs.ReadMessage(msg); err != nil {
		return oops.
			Code("READ_MESSAGE_FAILED").
			In("noise").
			With("message_index", index).
			Wrapf(err, "failed to process handshake message")
	}
	return nil
}

// split installs the transport ciphers and the optional length masks.
// The masks are keyed from the chaining key, so they must be exported before
// the handshake state is split.
func (nc *NoiseConn) split(hs *handshake.HandshakeState) error {
	var lengths *obfs.SipHashLengthModifier
	if nc.config.ObfuscateLengths {
		secret, err := hs.ExportKey(lengthMaskLabel)
		if err != nil {
			return oops.
				Code("SPLIT_FAILED").
				In("noise").
				Wrapf(err, "failed to export length mask key")
		}
		out, in, err := obfs.DeriveSipKeys(secret, nc.config.Initiator)
		internal.SecureZero(secret)
		if err != nil {
			return err
		}
		lengths = obfs.NewSipHashLengthModifier("frame-length", out, in)
	}

	send, recv, err := hs.Split()
	if err != nil {
		return oops.
			Code("SPLIT_FAILED").
			In("noise").
			Wrapf(err, "failed to split handshake")
	}
	hash := hs.HandshakeHash()

	if hs.Pattern().OneWay() {
		if nc.config.Initiator {
			recv.Destroy()
			recv = nil
		} else {
			send.Destroy()
			send = nil
		}
	}

	nc.lengths = lengths
	nc.send, nc.recv, nc.handshakeHash = send, recv, hash
	nc.remoteStatic = hs.RemoteStatic()
	hs.Destroy()
	nc.handshakeState = nil
	return nil
}

// resetHandshake discards a failed handshake state and prepares a new one.
func (nc *NoiseConn) resetHandshake() {
	if nc.isClosed() {
		return
	}
	if nc.handshakeState != nil {
		nc.handshakeState.Destroy()
	}
	hs, err := createHandshakeState(nc.config)
	if err != nil {
		nc.logger.WithError(err).Warn("failed to recreate handshake state")
		nc.handshakeState = nil
		nc.setState(internal.StateFailed)
		return
	}
	nc.handshakeState = hs
	nc.setState(internal.StateInit)
}

// markHandshakeComplete sets the handshake completion state and logs success.
func (nc *NoiseConn) markHandshakeComplete() {
	nc.setState(internal.StateEstablished)
	nc.metrics.HandshakeFinished()
	nc.logger.WithFields(logrus.Fields{
		"protocol": nc.config.ProtocolName,
		"duration": nc.metrics.HandshakeDuration(),
	}).Info("Noise handshake completed successfully")
}

// Read reads decrypted data from the connection.
func (nc *NoiseConn) Read(b []byte) (int, error) {
	nc.readMutex.Lock()
	defer nc.readMutex.Unlock()

	if err := nc.validateTransport(nc.recv, "read"); err != nil {
		return 0, err
	}

	if len(nc.pending) > 0 {
		return nc.drainPending(b), nil
	}

	if err := nc.configureTimeout(nc.config.ReadTimeout, nc.underlying.SetReadDeadline); err != nil {
		return 0, err
	}

	for len(nc.pending) == 0 {
		frame, err := nc.readFrame(true)
		if err != nil {
			if errors.Is(err, io.EOF) {
				return 0, io.EOF
			}
			return 0, oops.
				Code("UNDERLYING_READ_FAILED").
				In("noise").
				With("local_addr", nc.LocalAddr().String()).
				With("remote_addr", nc.RemoteAddr().String()).
				Wrapf(err, "underlying connection read failed")
		}

		plaintext, err := nc.recv.DecryptWithAd(nil, frame)
		if err != nil {
			nc.setState(internal.StateFailed)
			return 0, oops.
				Code("DECRYPT_FAILED").
				In("noise").
				With("encrypted_len", len(frame)).
				Wrapf(err, "failed to decrypt received data")
		}
		nc.metrics.Read.Add(len(plaintext))
		nc.pending = plaintext
	}

	return nc.drainPending(b), nil
}

func (nc *NoiseConn) drainPending(b []byte) int {
	n := copy(b, nc.pending)
	nc.pending = nc.pending[n:]
	if len(nc.pending) == 0 {
		nc.pending = nil
	}
	nc.logger.WithFields(logrus.Fields{
		"copied_len":  n,
		"pending_len": len(nc.pending),
	}).Trace("Data read")
	return n
}

// Write encrypts b and writes it as one or more transport frames.
func (nc *NoiseConn) Write(b []byte) (int, error) {
	nc.writeMutex.Lock()
	defer nc.writeMutex.Unlock()

	if err := nc.validateTransport(nc.send, "write"); err != nil {
		return 0, err
	}

	if err := nc.configureTimeout(nc.config.WriteTimeout, nc.underlying.SetWriteDeadline); err != nil {
		return 0, err
	}

	maxChunk := handshake.MaxMessageLen - nc.send.Cipher().TagLen()
	written := 0
	for written < len(b) {
		end := written + maxChunk
		if end > len(b) {
			end = len(b)
		}
		chunk := b[written:end]

		ciphertext, err := nc.send.EncryptWithAd(nil, chunk)
		if err != nil {
			nc.setState(internal.StateFailed)
			return written, oops.
				Code("ENCRYPT_FAILED").
				In("noise").
				With("plaintext_len", len(chunk)).
				Wrapf(err, "failed to encrypt data")
		}

		if err := nc.writeFrame(ciphertext, true); err != nil {
			return written, oops.
				Code("UNDERLYING_WRITE_FAILED").
				In("noise").
				With("local_addr", nc.LocalAddr().String()).
				With("remote_addr", nc.RemoteAddr().String()).
				With("encrypted_len", len(ciphertext)).
				Wrapf(err, "underlying connection write failed")
		}

		nc.metrics.Written.Add(len(chunk))
		written = end
	}

	nc.logger.WithFields(logrus.Fields{
		"plaintext_len": len(b),
	}).Trace("Data written")
	return written, nil
}

// writeFrame sends body behind its 2-byte length, masking the length in
// the transport phase when length obfuscation is enabled.
func (nc *NoiseConn) writeFrame(body []byte, transport bool) error {
	if len(body) > obfs.MaxFrameLen {
		return oops.
			Code("FRAME_TOO_LARGE").
			In("noise").
			With("frame_len", len(body)).
			Wrapf(noiseerr.ErrInvalidLength, "frame exceeds %d bytes", obfs.MaxFrameLen)
	}

	header := make([]byte, frameHeaderLen)
	binary.BigEndian.PutUint16(header, uint16(len(body)))
	if transport && nc.lengths != nil {
		var err error
		if header, err = nc.lengths.ModifyOutbound(obfs.PhaseFinal, header); err != nil {
			return err
		}
	}

	frame := make([]byte, 0, frameHeaderLen+len(body))
	frame = append(frame, header...)
	frame = append(frame, body...)

	n, err := nc.underlying.Write(frame)
	if err != nil {
		return err
	}
	if n != len(frame) {
		return oops.
			Code("PARTIAL_WRITE").
			In("noise").
			With("expected", len(frame)).
			With("written", n).
			Wrapf(io.ErrShortWrite, "partial frame write")
	}
	return nil
}

// readFrame reads one length-prefixed frame.
func (nc *NoiseConn) readFrame(transport bool) ([]byte, error) {
	header := make([]byte, frameHeaderLen)
	if _, err := io.ReadFull(nc.underlying, header); err != nil {
		return nil, err
	}
	if transport && nc.lengths != nil {
		var err error
		if header, err = nc.lengths.ModifyInbound(obfs.PhaseFinal, header); err != nil {
			return nil, err
		}
	}

	body := make([]byte, binary.BigEndian.Uint16(header))
	if _, err := io.ReadFull(nc.underlying, body); err != nil {
		if errors.Is(err, io.EOF) {
			err = io.ErrUnexpectedEOF
		}
		return nil, err
	}
	return body, nil
}

// validateTransport checks that the connection can move transport data in
// the direction served by cs.
func (nc *NoiseConn) validateTransport(cs *handshake.CipherState, op string) error {
	switch nc.getState() {
	case internal.StateClosed:
		return nc.stateError("CONN_CLOSED", "connection is closed")
	case internal.StateFailed:
		return nc.stateError("CONN_FAILED", "connection has failed")
	case internal.StateEstablished:
	default:
		return nc.stateError("HANDSHAKE_NOT_DONE", "handshake not completed")
	}

	if cs == nil {
		return oops.
			Code("NO_CIPHER_STATE").
			In("noise").
			With("operation", op).
			With("protocol", nc.config.ProtocolName).
			Wrapf(noiseerr.ErrNoKey, "one-way pattern does not allow %s", op)
	}
	return nil
}

func (nc *NoiseConn) stateError(code, msg string) error {
	return oops.
		Code(code).
		In("noise").
		With("state", nc.getState().String()).
		Wrapf(noiseerr.ErrInvalidState, "%s", msg)
}

// configureTimeout applies a per-operation timeout if configured.
func (nc *NoiseConn) configureTimeout(timeout time.Duration, set func(time.Time) error) error {
	if timeout <= 0 {
		return nil
	}
	if err := set(time.Now().Add(timeout)); err != nil {
		return oops.
			Code("SET_DEADLINE_FAILED").
			In("noise").
			With("timeout", timeout).
			Wrapf(err, "failed to set deadline")
	}
	return nil
}

// Close closes the connection and wipes its key material.
func (nc *NoiseConn) Close() error {
	nc.closeMutex.Lock()
	defer nc.closeMutex.Unlock()

	if nc.isClosed() {
		return nil
	}

	nc.setState(internal.StateClosed)
	nc.logger.Debug("Closing NoiseConn")

	if nc.shutdownManager != nil {
		nc.shutdownManager.UnregisterConnection(nc)
	}

	err := nc.underlying.Close()
	nc.wipe()
	if err != nil {
		return oops.
			Code("UNDERLYING_CLOSE_FAILED").
			In("noise").
			Wrapf(err, "failed to close underlying connection")
	}
	return nil
}

// wipe destroys key material once no Read, Write or Handshake is running.
func (nc *NoiseConn) wipe() {
	nc.handshakeMutex.Lock()
	defer nc.handshakeMutex.Unlock()
	nc.readMutex.Lock()
	defer nc.readMutex.Unlock()
	nc.writeMutex.Lock()
	defer nc.writeMutex.Unlock()

	if nc.handshakeState != nil {
		nc.handshakeState.Destroy()
		nc.handshakeState = nil
	}
	if nc.send != nil {
		nc.send.Destroy()
	}
	if nc.recv != nil {
		nc.recv.Destroy()
	}
	internal.SecureZero(nc.pending)
	nc.pending = nil
}

// HandshakeHash returns the handshake hash once the handshake has completed.
// Both peers see the same value, so it can serve as a channel binding.
func (nc *NoiseConn) HandshakeHash() []byte {
	nc.handshakeMutex.Lock()
	defer nc.handshakeMutex.Unlock()
	return append([]byte(nil), nc.handshakeHash...)
}

// RemoteStatic returns the peer's static public key learned or confirmed
// during the handshake, or nil for patterns without one.
func (nc *NoiseConn) RemoteStatic() []byte {
	nc.handshakeMutex.Lock()
	defer nc.handshakeMutex.Unlock()
	return append([]byte(nil), nc.remoteStatic...)
}

// GetConnectionMetrics returns the current connection statistics
func (nc *NoiseConn) GetConnectionMetrics() (bytesRead, bytesWritten int64, handshakeDuration time.Duration) {
	_, bytesRead = nc.metrics.Read.Load()
	_, bytesWritten = nc.metrics.Written.Load()
	return bytesRead, bytesWritten, nc.metrics.HandshakeDuration()
}

// GetFrameCounts returns the number of transport frames read and written
func (nc *NoiseConn) GetFrameCounts() (read, written int64) {
	read, _ = nc.metrics.Read.Load()
	written, _ = nc.metrics.Written.Load()
	return read, written
}

// HandshakeAttempts returns how many handshakes have been started on the
// connection, including retries.
func (nc *NoiseConn) HandshakeAttempts() int {
	return nc.metrics.HandshakeAttempts()
}

// GetConnectionState returns the current connection state
func (nc *NoiseConn) GetConnectionState() internal.ConnState {
	return nc.getState()
}

// SetShutdownManager sets the shutdown manager for this connection.
// If a shutdown manager is set, the connection will be automatically
// registered for graceful shutdown coordination.
func (nc *NoiseConn) SetShutdownManager(sm *ShutdownManager) {
	nc.shutdownManager = sm
	if sm != nil {
		sm.RegisterConnection(nc)
	}
}

// LocalAddr returns the local network address.
func (nc *NoiseConn) LocalAddr() net.Addr {
	return nc.localAddr
}

// RemoteAddr returns the remote network address.
func (nc *NoiseConn) RemoteAddr() net.Addr {
	return nc.remoteAddr
}

// SetDeadline sets the read and write deadlines.
func (nc *NoiseConn) SetDeadline(t time.Time) error {
	return nc.wrapDeadline(nc.underlying.SetDeadline(t), "SET_DEADLINE_FAILED", t)
}

// SetReadDeadline sets the read deadline.
func (nc *NoiseConn) SetReadDeadline(t time.Time) error {
	return nc.wrapDeadline(nc.underlying.SetReadDeadline(t), "SET_READ_DEADLINE_FAILED", t)
}

// SetWriteDeadline sets the write deadline.
func (nc *NoiseConn) SetWriteDeadline(t time.Time) error {
	return nc.wrapDeadline(nc.underlying.SetWriteDeadline(t), "SET_WRITE_DEADLINE_FAILED", t)
}

func (nc *NoiseConn) wrapDeadline(err error, code string, t time.Time) error {
	if err == nil {
		return nil
	}
	return oops.
		Code(code).
		In("noise").
		With("deadline", t).
		Wrapf(err, "failed to set deadline on underlying connection")
}

// isClosed returns true if the connection is closed
func (nc *NoiseConn) isClosed() bool {
	return nc.getState() == internal.StateClosed
}

// getState returns the current connection state in a thread-safe manner
func (nc *NoiseConn) getState() internal.ConnState {
	nc.stateMutex.RLock()
	defer nc.stateMutex.RUnlock()
	return nc.state
}

// setState sets the connection state in a thread-safe manner.
// A closed connection stays closed.
func (nc *NoiseConn) setState(newState internal.ConnState) {
	nc.stateMutex.Lock()
	defer nc.stateMutex.Unlock()

	oldState := nc.state
	if oldState == internal.StateClosed {
		return
	}
	nc.state = newState

	nc.logger.WithFields(logrus.Fields{
		"old_state": oldState.String(),
		"new_state": newState.String(),
	}).Debug("Connection state changed")
}
