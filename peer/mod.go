// Package peer defines what a node of the computation needs to run: its
// socket, message registry, identity, and the directory of the other nodes.
package peer

import (
	"crypto/ecdsa"
	"time"

	"go.dedis.ch/smpcreg/registry"
	"go.dedis.ch/smpcreg/transport"
	"go.dedis.ch/smpcreg/types"
)

// DefaultPartyTimeout bounds every wait on another node.
const DefaultPartyTimeout = 10 * time.Second

// Configuration is the configuration of a node.
type Configuration struct {
	Socket          transport.Socket
	MessageRegistry registry.Registry

	// Key signs every packet sent and decrypts the encrypted ones received.
	Key *ecdsa.PrivateKey

	// Directory lists every node with its identity.
	Directory *Directory

	// PartyTimeout bounds each wait on another node. Zero means
	// DefaultPartyTimeout.
	PartyTimeout time.Duration
}

// Timeout returns the effective party timeout.
func (c Configuration) Timeout() time.Duration {
	if c.PartyTimeout <= 0 {
		return DefaultPartyTimeout
	}
	return c.PartyTimeout
}

// Service is a node with a receive loop.
type Service interface {
	// Start starts the receive loop. It returns once the loop runs.
	Start() error

	// Stop stops the receive loop and closes the node.
	Stop() error
}

// Messaging sends messages to the other nodes. Every packet is signed with
// the node key.
type Messaging interface {
	// Unicast sends msg to dest in the clear.
	Unicast(dest string, msg types.Message) error

	// Broadcast unicasts msg to every destination, skipping the node itself.
	Broadcast(dests []string, msg types.Message) error

	// SendEncrypted sends msg to dest, encrypted to the public key dest has in
	// the directory.
	SendEncrypted(dest string, msg types.Message) error
}
