/*
   Copyright (c) 2023, btnmasher
   All rights reserved.
   Use of this source code is governed by a BSD-style
   license that can be found in the LICENSE file.
*/

package titanircd

// Capabilities tracks the IRCv3 capability negotiation state for a single
// connection in progress. Unlike dircd's bitmask-per-known-capability
// Capabilities struct, this only needs to remember what was requested and
// acknowledged, since the spec's only advertised capability is "sasl".
// Grounded on dircd's capabilities.go (the CAP LS/REQ/ACK/END dance) and
// original_source/src/negotiator/unauthenticated.rs (CAP handling therein).
type Capabilities struct {
	negotiating bool
	requested   map[string]bool
	acked       map[string]bool
}

// NewCapabilities returns an empty set, ready to begin a CAP LS/REQ/ACK/END
// exchange.
func NewCapabilities() *Capabilities {
	return &Capabilities{
		requested: make(map[string]bool),
		acked:     make(map[string]bool),
	}
}

// supportedCapabilities lists every capability this server advertises in
// response to CAP LS.
var supportedCapabilities = []string{"sasl"}

// Begin marks negotiation as in progress, deferring registration until CAP
// END.
func (c *Capabilities) Begin() { c.negotiating = true }

// End closes out negotiation, per RFC CAP END semantics.
func (c *Capabilities) End() { c.negotiating = false }

// Negotiating reports whether the client has asked to defer registration
// via CAP LS/REQ without yet sending CAP END.
func (c *Capabilities) Negotiating() bool { return c.negotiating }

// Request records tokens named in a CAP REQ line, acknowledging only the
// ones this server actually supports, and returns the ack/nak partitioning
// for the reply.
func (c *Capabilities) Request(tokens []string) (acked, naked []string) {
	for _, tok := range tokens {
		if supportsCapability(tok) {
			c.requested[tok] = true
			c.acked[tok] = true
			acked = append(acked, tok)
			continue
		}
		naked = append(naked, tok)
	}
	return acked, naked
}

// Has reports whether a capability was successfully negotiated.
func (c *Capabilities) Has(name string) bool { return c.acked[name] }

func supportsCapability(name string) bool {
	for _, s := range supportedCapabilities {
		if s == name {
			return true
		}
	}
	return false
}
