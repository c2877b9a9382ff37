package obfs

// XORModifier XORs handshake messages with a repeating key. It leaves the
// transport phase alone.
type XORModifier struct {
	name string
	key  []byte
}

// NewXORModifier creates an XOR modifier. An empty key falls back to 0xAA.
func NewXORModifier(name string, key []byte) *XORModifier {
	if len(key) == 0 {
		key = []byte{0xAA}
	}
	return &XORModifier{name: name, key: append([]byte(nil), key...)}
}

// ModifyOutbound XORs data with the key.
func (x *XORModifier) ModifyOutbound(phase Phase, data []byte) ([]byte, error) {
	if phase == PhaseFinal || len(data) == 0 {
		return data, nil
	}
	out := make([]byte, len(data))
	for i, b := range data {
		out[i] = b ^ x.key[i%len(x.key)]
	}
	return out, nil
}

// ModifyInbound is the same operation as ModifyOutbound.
func (x *XORModifier) ModifyInbound(phase Phase, data []byte) ([]byte, error) {
	return x.ModifyOutbound(phase, data)
}

// Name returns the modifier name.
func (x *XORModifier) Name() string {
	return x.name
}
