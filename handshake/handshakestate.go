package handshake

import (
	"crypto/rand"
	"io"

	"github.com/go-i2p/go-noise/internal"
	"github.com/go-i2p/go-noise/noiseerr"
	"github.com/go-i2p/go-noise/protocol"
	"github.com/go-i2p/go-noise/suite"
	"github.com/samber/oops"
	"github.com/sirupsen/logrus"
)

// HandshakeState runs one side of a Noise handshake. Messages are produced
// and consumed in the order of the pattern; once the last one has been
// processed the caller calls Split to obtain the transport ciphers.
//
// A HandshakeState is not safe for concurrent use.
type HandshakeState struct {
	cfg     *Config
	id      protocol.ProtocolID
	name    string
	role    Role
	pattern Pattern

	dh     suite.DH
	kem    suite.KEM
	cipher suite.Cipher
	ss     *SymmetricState
	rng    io.Reader

	s, e, e1    *suite.Keypair
	rs, re, re1 []byte
	psk         []byte
	pskMode     bool

	msgIndex  int
	state     State
	destroyed bool
	hash      []byte
}

// NewHandshakeState validates cfg, checks that the pattern's key
// requirements are met and mixes the prologue and pre-messages, Alice's
// first.
func NewHandshakeState(cfg *Config) (*HandshakeState, error) {
	hs, err := newHandshakeState(cfg)
	if err != nil {
		return nil, err
	}
	return hs, nil
}

// newHandshakeState builds the state. Once the private copy of cfg exists,
// any failure destroys the partial state before returning it with the error.
func newHandshakeState(cfg *Config) (hs *HandshakeState, err error) {
	if cfg == nil {
		return nil, oops.
			Code("INVALID_PARAM").
			In("handshake").
			Wrapf(noiseerr.ErrInvalidParam, "config is required")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	id, err := cfg.protocolID()
	if err != nil {
		return nil, err
	}
	name, err := protocol.FormatProtocolName(&id)
	if err != nil {
		return nil, err
	}

	pattern, err := LookupPattern(id)
	if err != nil {
		return nil, err
	}
	if err := checkHybrid(id, pattern); err != nil {
		return nil, err
	}

	hs = &HandshakeState{
		cfg:     cfg.clone(),
		id:      id,
		name:    name,
		role:    cfg.Role,
		pattern: pattern,
		rng:     cfg.Random,
		pskMode: pattern.hasToken(TokenPSK),
	}
	if hs.rng == nil {
		hs.rng = rand.Reader
	}
	defer func() {
		if err != nil {
			hs.Destroy()
		}
	}()

	if err = hs.loadBackends(); err != nil {
		return hs, err
	}
	if err = hs.loadKeys(cfg); err != nil {
		return hs, err
	}
	if err = hs.checkRequirements(); err != nil {
		return hs, err
	}
	hash, err := suite.NewHash(id.Hash)
	if err != nil {
		return hs, err
	}
	hs.ss = NewSymmetricState(name, hs.cipher, hash)
	if err = hs.mixPreMessages(cfg.Prologue); err != nil {
		return hs, err
	}

	log.WithFields(logrus.Fields{
		"protocol": name,
		"role":     hs.role.String(),
		"messages": len(pattern.Messages),
	}).Debug("Handshake state created")

	return hs, nil
}

// checkHybrid enforces that hfs and a hybrid algorithm come together.
func checkHybrid(id protocol.ProtocolID, p Pattern) error {
	hfs := id.HasModifier(protocol.ModifierHFS)
	if hfs && id.Hybrid == 0 {
		return notApplicable(&p, protocol.ModifierHFS, "no hybrid algorithm in the protocol name")
	}
	if !hfs && id.Hybrid != 0 {
		return oops.
			Code("NOT_APPLICABLE").
			In("handshake").
			With("hybrid", id.Hybrid.String()).
			Wrapf(noiseerr.ErrNotApplicable, "hybrid algorithm %s requires the hfs modifier", id.Hybrid)
	}
	return nil
}

func (hs *HandshakeState) loadBackends() error {
	var err error
	if hs.dh, err = suite.NewDH(hs.id.DH); err != nil {
		return err
	}
	if hs.cipher, err = suite.NewCipher(hs.id.Cipher); err != nil {
		return err
	}
	if hs.id.Hybrid != 0 {
		if hs.kem, err = suite.NewKEM(hs.id.Hybrid); err != nil {
			return err
		}
	}
	return nil
}

func (hs *HandshakeState) loadKeys(cfg *Config) error {
	var err error
	if cfg.LocalStatic != nil {
		if hs.s, err = hs.localKeypair("local static", cfg.LocalStatic); err != nil {
			return err
		}
	}
	if cfg.LocalEphemeral != nil {
		if hs.e, err = hs.localKeypair("local ephemeral", cfg.LocalEphemeral); err != nil {
			return err
		}
	}
	if cfg.RemoteStatic != nil {
		if hs.rs, err = checkPublic("remote static", cfg.RemoteStatic, hs.dh.PublicKeyLen()); err != nil {
			return err
		}
	}
	if cfg.RemoteEphemeral != nil {
		if hs.re, err = checkPublic("remote ephemeral", cfg.RemoteEphemeral, hs.dh.PublicKeyLen()); err != nil {
			return err
		}
	}
	if cfg.LocalHybridEphemeral != nil || cfg.RemoteHybridEphemeral != nil {
		if hs.kem == nil {
			return oops.
				Code("INVALID_PARAM").
				In("handshake").
				With("protocol", hs.name).
				Wrapf(noiseerr.ErrInvalidParam, "hybrid keys supplied for a protocol without a hybrid algorithm")
		}
		if kp := cfg.LocalHybridEphemeral; kp != nil {
			if _, err := checkPublic("local hybrid ephemeral", kp.Public, hs.kem.PublicKeyLen()); err != nil {
				return err
			}
			hs.e1 = kp.Clone()
		}
		if cfg.RemoteHybridEphemeral != nil {
			if hs.re1, err = checkPublic("remote hybrid ephemeral", cfg.RemoteHybridEphemeral, hs.kem.PublicKeyLen()); err != nil {
				return err
			}
		}
	}
	if cfg.PSK != nil {
		hs.psk = cloneBytes(cfg.PSK)
	}
	return nil
}

func (hs *HandshakeState) localKeypair(which string, private []byte) (*suite.Keypair, error) {
	if len(private) != hs.dh.PrivateKeyLen() {
		return nil, oops.
			Code("INVALID_LENGTH").
			In("handshake").
			With("key", which).
			With("length", len(private)).
			With("expected", hs.dh.PrivateKeyLen()).
			Wrapf(noiseerr.ErrInvalidLength, "%s key must be %d bytes", which, hs.dh.PrivateKeyLen())
	}
	pub, err := hs.dh.PublicKey(private)
	if err != nil {
		return nil, err
	}
	return &suite.Keypair{Private: cloneBytes(private), Public: pub}, nil
}

func checkPublic(which string, public []byte, want int) ([]byte, error) {
	if len(public) != want {
		return nil, oops.
			Code("INVALID_LENGTH").
			In("handshake").
			With("key", which).
			With("length", len(public)).
			With("expected", want).
			Wrapf(noiseerr.ErrInvalidLength, "%s key must be %d bytes", which, want)
	}
	return cloneBytes(public), nil
}

// preMessageIndexes returns the index of the local and remote pre-message.
func (hs *HandshakeState) preMessageIndexes() (local, remote int) {
	if hs.role == RoleInitiator {
		return 0, 1
	}
	return 1, 0
}

func (hs *HandshakeState) localDirection() Direction {
	if hs.role == RoleInitiator {
		return AliceToBob
	}
	return BobToAlice
}

func (hs *HandshakeState) writes(t Token) bool {
	for _, m := range hs.pattern.Messages {
		if m.Direction != hs.localDirection() {
			continue
		}
		if containsToken(m.Tokens, t) {
			return true
		}
	}
	return false
}

func containsToken(tokens []Token, t Token) bool {
	for _, tok := range tokens {
		if tok == t {
			return true
		}
	}
	return false
}

func (hs *HandshakeState) checkRequirements() error {
	local, remote := hs.preMessageIndexes()
	preLocal := hs.pattern.PreMessages[local]
	preRemote := hs.pattern.PreMessages[remote]

	switch {
	case hs.s == nil && (containsToken(preLocal, TokenS) || hs.writes(TokenS)):
		return hs.requirement(noiseerr.ErrLocalKeyRequired, "LOCAL_KEY_REQUIRED", "local static key")
	case hs.e == nil && containsToken(preLocal, TokenE):
		return hs.requirement(noiseerr.ErrLocalKeyRequired, "LOCAL_KEY_REQUIRED", "local ephemeral key")
	case hs.e1 == nil && containsToken(preLocal, TokenE1):
		return hs.requirement(noiseerr.ErrLocalKeyRequired, "LOCAL_KEY_REQUIRED", "local hybrid ephemeral key")
	case hs.rs == nil && containsToken(preRemote, TokenS):
		return hs.requirement(noiseerr.ErrRemoteKeyRequired, "REMOTE_KEY_REQUIRED", "remote static key")
	case hs.re == nil && containsToken(preRemote, TokenE):
		return hs.requirement(noiseerr.ErrRemoteKeyRequired, "REMOTE_KEY_REQUIRED", "remote ephemeral key")
	case hs.re1 == nil && containsToken(preRemote, TokenE1):
		return hs.requirement(noiseerr.ErrRemoteKeyRequired, "REMOTE_KEY_REQUIRED", "remote hybrid ephemeral key")
	case hs.psk == nil && hs.pskMode:
		return hs.requirement(noiseerr.ErrPSKRequired, "PSK_REQUIRED", "pre-shared key")
	}
	return nil
}

func (hs *HandshakeState) requirement(sentinel error, code, what string) error {
	return oops.
		Code(code).
		In("handshake").
		With("protocol", hs.name).
		With("role", hs.role.String()).
		Wrapf(sentinel, "%s requires a %s", hs.pattern.Name(), what)
}

func (hs *HandshakeState) mixPreMessages(prologue []byte) error {
	if err := hs.ss.MixHash(prologue); err != nil {
		return err
	}
	local, _ := hs.preMessageIndexes()
	for i, tokens := range hs.pattern.PreMessages {
		for _, t := range tokens {
			pub := hs.preMessageKey(t, i == local)
			if err := hs.ss.MixHash(pub); err != nil {
				return err
			}
			if t == TokenE && hs.pskMode {
				if err := hs.ss.MixKey(pub); err != nil {
					return err
				}
			}
		}
	}
	return nil
}

func (hs *HandshakeState) preMessageKey(t Token, local bool) []byte {
	switch {
	case t == TokenS && local:
		return hs.s.Public
	case t == TokenS:
		return hs.rs
	case t == TokenE && local:
		return hs.e.Public
	case t == TokenE:
		return hs.re
	case t == TokenE1 && local:
		return hs.e1.Public
	default:
		return hs.re1
	}
}

// Action returns what the caller must do next.
func (hs *HandshakeState) Action() Action {
	if hs.destroyed {
		return ActionNone
	}
	switch hs.state {
	case StateFailed:
		return ActionFailed
	case StateTerminal:
		return ActionComplete
	case StateSplit:
		return ActionSplit
	}
	if hs.pattern.Messages[hs.msgIndex].Direction == hs.localDirection() {
		return ActionWriteMessage
	}
	return ActionReadMessage
}

// State returns the lifecycle state.
func (hs *HandshakeState) State() State {
	return hs.state
}

// Role returns the side this state plays.
func (hs *HandshakeState) Role() Role {
	return hs.role
}

// ProtocolID returns the parsed protocol name.
func (hs *HandshakeState) ProtocolID() protocol.ProtocolID {
	return hs.id
}

// ProtocolName returns the canonical protocol name.
func (hs *HandshakeState) ProtocolName() string {
	return hs.name
}

// Pattern returns a copy of the pattern with modifiers applied.
func (hs *HandshakeState) Pattern() Pattern {
	return hs.pattern.clone()
}

// MessageIndex returns the number of messages processed so far.
func (hs *HandshakeState) MessageIndex() int {
	return hs.msgIndex
}

// HandshakeHash returns h. After the last message it is the channel
// binding value and stays available after Split.
func (hs *HandshakeState) HandshakeHash() []byte {
	if hs.hash != nil {
		return cloneBytes(hs.hash)
	}
	if hs.destroyed || hs.state == StateFailed {
		return nil
	}
	return hs.ss.HandshakeHash()
}

// RemoteStatic returns the peer's static public key, if known.
func (hs *HandshakeState) RemoteStatic() []byte {
	return cloneBytes(hs.rs)
}

// LocalStatic returns the local static public key, if set.
func (hs *HandshakeState) LocalStatic() []byte {
	if hs.s == nil {
		return nil
	}
	return cloneBytes(hs.s.Public)
}

// LocalEphemeral returns the local ephemeral public key, if generated.
func (hs *HandshakeState) LocalEphemeral() []byte {
	if hs.e == nil {
		return nil
	}
	return cloneBytes(hs.e.Public)
}

// RemoteEphemeral returns the peer's ephemeral public key, if received.
func (hs *HandshakeState) RemoteEphemeral() []byte {
	return cloneBytes(hs.re)
}

// WriteMessage produces the next handshake message carrying payload.
// Calling it out of turn returns ErrInvalidState and changes nothing, as
// does a payload that would not fit in MaxMessageLen. Any other failure
// is permanent.
func (hs *HandshakeState) WriteMessage(payload []byte) ([]byte, error) {
	if err := hs.expect(ActionWriteMessage); err != nil {
		return nil, err
	}
	msg := hs.pattern.Messages[hs.msgIndex]
	size := hs.messageLen(msg, len(payload))
	if size > MaxMessageLen {
		return nil, oops.
			Code("INVALID_LENGTH").
			In("handshake").
			With("message", hs.msgIndex).
			With("length", size).
			Wrapf(noiseerr.ErrInvalidLength, "handshake message would exceed %d bytes", MaxMessageLen)
	}

	out := make([]byte, 0, size)
	var err error
	for _, t := range msg.Tokens {
		if out, err = hs.writeToken(out, t); err != nil {
			return nil, hs.fail(err)
		}
	}
	ct, err := hs.ss.EncryptAndHash(payload)
	if err != nil {
		return nil, hs.fail(err)
	}
	out = append(out, ct...)

	log.WithFields(logrus.Fields{
		"protocol": hs.name,
		"role":     hs.role.String(),
		"message":  hs.msgIndex,
		"length":   len(out),
	}).Debug("Handshake message written")

	hs.advance()
	return out, nil
}

// ReadMessage consumes the next handshake message and returns its payload.
// Calling it out of turn returns ErrInvalidState and changes nothing; any
// other failure is permanent.
func (hs *HandshakeState) ReadMessage(message []byte) ([]byte, error) {
	if err := hs.expect(ActionReadMessage); err != nil {
		return nil, err
	}
	if len(message) > MaxMessageLen {
		return nil, hs.fail(oops.
			Code("INVALID_LENGTH").
			In("handshake").
			With("length", len(message)).
			Wrapf(noiseerr.ErrInvalidLength, "handshake message exceeds %d bytes", MaxMessageLen))
	}

	msg := hs.pattern.Messages[hs.msgIndex]
	rest := message
	var err error
	for _, t := range msg.Tokens {
		if rest, err = hs.readToken(rest, t); err != nil {
			return nil, hs.fail(err)
		}
	}
	payload, err := hs.ss.DecryptAndHash(rest)
	if err != nil {
		return nil, hs.fail(err)
	}

	log.WithFields(logrus.Fields{
		"protocol": hs.name,
		"role":     hs.role.String(),
		"message":  hs.msgIndex,
		"length":   len(message),
	}).Debug("Handshake message read")

	hs.advance()
	return payload, nil
}

// ExportKey derives a secret from the final chaining key under label. Both
// peers get the same value. It is valid only before Split.
func (hs *HandshakeState) ExportKey(label string) ([]byte, error) {
	if err := hs.expect(ActionSplit); err != nil {
		return nil, err
	}
	return hs.ss.ExportKey([]byte(label))
}

// Split returns the transport cipher states for sending and receiving.
// It is valid once, after the last message.
func (hs *HandshakeState) Split() (send, recv *CipherState, err error) {
	if err := hs.expect(ActionSplit); err != nil {
		return nil, nil, err
	}
	c1, c2, err := hs.ss.Split()
	if err != nil {
		return nil, nil, hs.fail(err)
	}
	hs.state = StateTerminal
	wipePrivate(hs.e)
	wipePrivate(hs.e1)

	log.WithFields(logrus.Fields{
		"protocol": hs.name,
		"role":     hs.role.String(),
	}).Debug("Handshake split")

	if hs.role == RoleInitiator {
		return c1, c2, nil
	}
	return c2, c1, nil
}

// FallbackTo starts a new handshake for id, which must carry the fallback
// modifier, using the keys exchanged in this state's first message as the
// pre-message. Alice calls it after failing to read Bob's reply and Bob after
// failing to read Alice's first message. On success this state is destroyed.
func (hs *HandshakeState) FallbackTo(id protocol.ProtocolID) (*HandshakeState, error) {
	if hs.destroyed || (hs.state != StateHandshaking && hs.state != StateFailed) {
		return nil, hs.invalidState("fallback")
	}
	if !id.HasModifier(protocol.ModifierFallback) {
		return nil, oops.
			Code("NOT_APPLICABLE").
			In("handshake").
			With("protocol", id.String()).
			Wrapf(noiseerr.ErrNotApplicable, "fallback protocol must use the fallback modifier")
	}
	name, err := protocol.FormatProtocolName(&id)
	if err != nil {
		return nil, err
	}
	pattern, err := LookupPattern(id)
	if err != nil {
		return nil, err
	}

	cfg := hs.cfg.clone()
	defer wipeConfig(cfg)
	cfg.ProtocolName = name
	cfg.RemoteStatic = nil
	cfg.LocalEphemeral = nil
	cfg.RemoteEphemeral = nil
	cfg.LocalHybridEphemeral = nil
	cfg.RemoteHybridEphemeral = nil

	local, remote := hs.preMessageIndexes()
	for _, t := range pattern.PreMessages[local] {
		switch {
		case t == TokenE && hs.e != nil:
			cfg.LocalEphemeral = cloneBytes(hs.e.Private)
		case t == TokenE1 && hs.e1 != nil:
			cfg.LocalHybridEphemeral = hs.e1.Clone()
		}
	}
	for _, t := range pattern.PreMessages[remote] {
		switch t {
		case TokenE:
			cfg.RemoteEphemeral = cloneBytes(hs.re)
		case TokenE1:
			cfg.RemoteHybridEphemeral = cloneBytes(hs.re1)
		case TokenS:
			cfg.RemoteStatic = cloneBytes(hs.rs)
			if cfg.RemoteStatic == nil {
				cfg.RemoteStatic = cloneBytes(hs.cfg.RemoteStatic)
			}
		}
	}

	next, err := NewHandshakeState(cfg)
	if err != nil {
		return nil, err
	}

	log.WithFields(logrus.Fields{
		"from": hs.name,
		"to":   name,
		"role": hs.role.String(),
	}).Info("Falling back to a new handshake")

	hs.Destroy()
	return next, nil
}

// Destroy zeroes all key material. The state is unusable afterwards.
func (hs *HandshakeState) Destroy() {
	if hs.destroyed {
		return
	}
	hs.destroyed = true
	if hs.ss != nil {
		hs.ss.Destroy()
	}
	hs.s.Destroy()
	hs.e.Destroy()
	hs.e1.Destroy()
	internal.SecureZero(hs.rs)
	internal.SecureZero(hs.re)
	internal.SecureZero(hs.re1)
	internal.SecureZero(hs.psk)
	internal.SecureZero(hs.hash)
	hs.hash = nil
	wipeConfig(hs.cfg)
}

// wipeConfig zeroes the secrets held by a private copy of a Config.
func wipeConfig(cfg *Config) {
	if cfg == nil {
		return
	}
	internal.SecureZero(cfg.LocalStatic)
	internal.SecureZero(cfg.LocalEphemeral)
	internal.SecureZero(cfg.PSK)
	cfg.LocalHybridEphemeral.Destroy()
}

func (hs *HandshakeState) expect(want Action) error {
	if got := hs.Action(); got != want {
		return oops.
			Code("INVALID_STATE").
			In("handshake").
			With("protocol", hs.name).
			With("role", hs.role.String()).
			With("state", hs.state.String()).
			With("expected", want.String()).
			With("action", got.String()).
			Wrapf(noiseerr.ErrInvalidState, "cannot %s now, next action is %s", want, got)
	}
	return nil
}

func (hs *HandshakeState) invalidState(op string) error {
	return oops.
		Code("INVALID_STATE").
		In("handshake").
		With("protocol", hs.name).
		With("state", hs.state.String()).
		Wrapf(noiseerr.ErrInvalidState, "cannot %s in state %s", op, hs.state)
}

func (hs *HandshakeState) fail(err error) error {
	hs.state = StateFailed
	hs.ss.Destroy()
	log.WithFields(logrus.Fields{
		"protocol": hs.name,
		"role":     hs.role.String(),
		"message":  hs.msgIndex,
		"code":     noiseerr.Code(err),
	}).Warn("Handshake failed")
	return err
}

func (hs *HandshakeState) advance() {
	hs.msgIndex++
	if hs.msgIndex < len(hs.pattern.Messages) {
		hs.state = StateHandshaking
		return
	}
	hs.hash = hs.ss.HandshakeHash()
	hs.state = StateSplit
}

// messageLen returns the size of the next message for a payload length.
func (hs *HandshakeState) messageLen(msg Message, payloadLen int) int {
	keyed := hs.ss.HasKey()
	tag := hs.cipher.TagLen()
	sealed := func(n int) int {
		if keyed {
			return n + tag
		}
		return n
	}

	n := 0
	for _, t := range msg.Tokens {
		switch t {
		case TokenE:
			n += hs.dh.PublicKeyLen()
			if hs.pskMode {
				keyed = true
			}
		case TokenS:
			n += sealed(hs.dh.PublicKeyLen())
		case TokenE1:
			n += sealed(hs.kem.PublicKeyLen())
		case TokenEKEM1:
			n += sealed(hs.kem.CiphertextLen())
			keyed = true
		default:
			keyed = true
		}
	}
	return n + sealed(payloadLen)
}

func (hs *HandshakeState) writeToken(out []byte, t Token) ([]byte, error) {
	switch t {
	case TokenE:
		if hs.e == nil {
			kp, err := hs.dh.GenerateKeypair(hs.rng)
			if err != nil {
				return nil, err
			}
			hs.e = kp
		}
		if err := hs.mixEphemeral(hs.e.Public); err != nil {
			return nil, err
		}
		return append(out, hs.e.Public...), nil

	case TokenS:
		ct, err := hs.ss.EncryptAndHash(hs.s.Public)
		if err != nil {
			return nil, err
		}
		return append(out, ct...), nil

	case TokenE1:
		if hs.e1 == nil {
			kp, err := hs.kem.GenerateKeypair(hs.rng)
			if err != nil {
				return nil, err
			}
			hs.e1 = kp
		}
		ct, err := hs.ss.EncryptAndHash(hs.e1.Public)
		if err != nil {
			return nil, err
		}
		return append(out, ct...), nil

	case TokenEKEM1:
		if hs.re1 == nil {
			return nil, hs.requirement(noiseerr.ErrRemoteKeyRequired, "REMOTE_KEY_REQUIRED", "remote hybrid ephemeral key")
		}
		kemCT, secret, err := hs.kem.Encapsulate(hs.re1, hs.rng)
		if err != nil {
			return nil, err
		}
		defer internal.SecureZero(secret)
		ct, err := hs.ss.EncryptAndHash(kemCT)
		if err != nil {
			return nil, err
		}
		if err := hs.ss.MixKey(secret); err != nil {
			return nil, err
		}
		return append(out, ct...), nil
	}
	return out, hs.mixToken(t)
}

func (hs *HandshakeState) readToken(in []byte, t Token) ([]byte, error) {
	switch t {
	case TokenE:
		data, rest, err := hs.take(in, hs.dh.PublicKeyLen(), t)
		if err != nil {
			return nil, err
		}
		hs.re = cloneBytes(data)
		return rest, hs.mixEphemeral(hs.re)

	case TokenS:
		data, rest, err := hs.take(in, hs.sealedLen(hs.dh.PublicKeyLen()), t)
		if err != nil {
			return nil, err
		}
		pub, err := hs.ss.DecryptAndHash(data)
		if err != nil {
			return nil, err
		}
		hs.rs = pub
		return rest, nil

	case TokenE1:
		data, rest, err := hs.take(in, hs.sealedLen(hs.kem.PublicKeyLen()), t)
		if err != nil {
			return nil, err
		}
		pub, err := hs.ss.DecryptAndHash(data)
		if err != nil {
			return nil, err
		}
		hs.re1 = pub
		return rest, nil

	case TokenEKEM1:
		data, rest, err := hs.take(in, hs.sealedLen(hs.kem.CiphertextLen()), t)
		if err != nil {
			return nil, err
		}
		kemCT, err := hs.ss.DecryptAndHash(data)
		if err != nil {
			return nil, err
		}
		if hs.e1 == nil {
			return nil, hs.requirement(noiseerr.ErrLocalKeyRequired, "LOCAL_KEY_REQUIRED", "local hybrid ephemeral key")
		}
		secret, err := hs.kem.Decapsulate(hs.e1.Private, kemCT)
		if err != nil {
			return nil, err
		}
		defer internal.SecureZero(secret)
		return rest, hs.ss.MixKey(secret)
	}
	return in, hs.mixToken(t)
}

// mixEphemeral hashes an ephemeral public key, and with a psk also mixes
// it into the chaining key.
func (hs *HandshakeState) mixEphemeral(pub []byte) error {
	if err := hs.ss.MixHash(pub); err != nil {
		return err
	}
	if hs.pskMode {
		return hs.ss.MixKey(pub)
	}
	return nil
}

// mixToken handles the tokens that are not transmitted.
func (hs *HandshakeState) mixToken(t Token) error {
	if t == TokenPSK {
		return hs.ss.MixKeyAndHash(hs.psk)
	}

	initiator := hs.role == RoleInitiator
	var local *suite.Keypair
	var remote []byte
	switch t {
	case TokenEE:
		local, remote = hs.e, hs.re
	case TokenES:
		if initiator {
			local, remote = hs.e, hs.rs
		} else {
			local, remote = hs.s, hs.re
		}
	case TokenSE:
		if initiator {
			local, remote = hs.s, hs.re
		} else {
			local, remote = hs.e, hs.rs
		}
	case TokenSS:
		local, remote = hs.s, hs.rs
	default:
		return oops.
			Code("INVALID_STATE").
			In("handshake").
			With("token", t.String()).
			Wrapf(noiseerr.ErrInvalidState, "unexpected token %s", t)
	}
	if local == nil {
		return hs.requirement(noiseerr.ErrLocalKeyRequired, "LOCAL_KEY_REQUIRED", "local key for "+t.String())
	}
	if remote == nil {
		return hs.requirement(noiseerr.ErrRemoteKeyRequired, "REMOTE_KEY_REQUIRED", "remote key for "+t.String())
	}
	shared, err := hs.dh.DH(local.Private, remote)
	if err != nil {
		return err
	}
	defer internal.SecureZero(shared)
	return hs.ss.MixKey(shared)
}

// wipePrivate zeroes the private half of kp and keeps the public key.
func wipePrivate(kp *suite.Keypair) {
	if kp != nil {
		internal.SecureZero(kp.Private)
	}
}

func (hs *HandshakeState) sealedLen(n int) int {
	if hs.ss.HasKey() {
		return n + hs.cipher.TagLen()
	}
	return n
}

func (hs *HandshakeState) take(in []byte, n int, t Token) ([]byte, []byte, error) {
	if len(in) < n {
		return nil, nil, oops.
			Code("INVALID_LENGTH").
			In("handshake").
			With("token", t.String()).
			With("need", n).
			With("have", len(in)).
			Wrapf(noiseerr.ErrInvalidLength, "handshake message too short for %s", t)
	}
	return in[:n], in[n:], nil
}
