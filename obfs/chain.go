package obfs

import (
	"github.com/samber/oops"
	"github.com/sirupsen/logrus"
)

// Chain applies a list of modifiers in order on the way out and in reverse
// order on the way in.
type Chain struct {
	modifiers []Modifier
	name      string
}

// NewChain creates a chain. Nil modifiers are skipped.
func NewChain(name string, modifiers ...Modifier) *Chain {
	chain := make([]Modifier, 0, len(modifiers))
	for _, m := range modifiers {
		if m != nil {
			chain = append(chain, m)
		}
	}
	return &Chain{modifiers: chain, name: name}
}

// ModifyOutbound runs every modifier in insertion order.
func (c *Chain) ModifyOutbound(phase Phase, data []byte) ([]byte, error) {
	result := data
	for i, m := range c.modifiers {
		modified, err := m.ModifyOutbound(phase, result)
		if err != nil {
			return nil, c.chainError(err, m, i, phase, "outbound")
		}
		result = modified
	}
	return result, nil
}

// ModifyInbound runs every modifier in reverse order.
func (c *Chain) ModifyInbound(phase Phase, data []byte) ([]byte, error) {
	result := data
	for i := len(c.modifiers) - 1; i >= 0; i-- {
		m := c.modifiers[i]
		modified, err := m.ModifyInbound(phase, result)
		if err != nil {
			return nil, c.chainError(err, m, i, phase, "inbound")
		}
		result = modified
	}
	return result, nil
}

func (c *Chain) chainError(err error, m Modifier, index int, phase Phase, direction string) error {
	log.WithFields(logrus.Fields{
		"chain":     c.name,
		"modifier":  m.Name(),
		"phase":     phase.String(),
		"direction": direction,
	}).Debug("modifier failed")
	return oops.
		Code("MODIFIER_CHAIN_ERROR").
		In("obfs").
		With("chain_name", c.name).
		With("modifier_name", m.Name()).
		With("modifier_index", index).
		With("phase", phase.String()).
		Wrapf(err, "modifier chain %s processing failed", direction)
}

// Name returns the chain name.
func (c *Chain) Name() string {
	return c.name
}

// Count returns the number of modifiers in the chain.
func (c *Chain) Count() int {
	return len(c.modifiers)
}

// IsEmpty reports whether the chain has no modifiers.
func (c *Chain) IsEmpty() bool {
	return len(c.modifiers) == 0
}

// ModifierNames returns the names of the modifiers in application order.
func (c *Chain) ModifierNames() []string {
	names := make([]string, len(c.modifiers))
	for i, m := range c.modifiers {
		names[i] = m.Name()
	}
	return names
}
