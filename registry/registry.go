// Package registry maps message names to callbacks and dispatches received
// packets to them.
package registry

import (
	"encoding/json"
	"sync"

	"go.dedis.ch/smpcreg/transport"
	"go.dedis.ch/smpcreg/types"
	"golang.org/x/xerrors"
)

// Exec is the callback executed when a message of the registered type is
// received.
type Exec func(types.Message, transport.Packet) error

// Registry holds the callbacks of a node.
type Registry interface {
	// RegisterMessageCallback registers exec for messages of the same type as
	// msg. A second registration for the same type replaces the first.
	RegisterMessageCallback(msg types.Message, exec Exec)

	// ProcessPacket unmarshals the packet message and runs its callback.
	ProcessPacket(pkt transport.Packet) error

	// MarshalMessage wraps msg into a transport message.
	MarshalMessage(msg types.Message) (transport.Message, error)
}

type entry struct {
	template types.Message
	exec     Exec
}

// NewRegistry returns an empty registry.
func NewRegistry() *MessageRegistry {
	return &MessageRegistry{
		entries: make(map[string]entry),
	}
}

// MessageRegistry is a thread-safe registry.
//
// - implements registry.Registry
type MessageRegistry struct {
	sync.RWMutex
	entries map[string]entry
}

// RegisterMessageCallback implements registry.Registry.
func (r *MessageRegistry) RegisterMessageCallback(msg types.Message, exec Exec) {
	r.Lock()
	defer r.Unlock()

	r.entries[msg.Name()] = entry{template: msg, exec: exec}
}

// ProcessPacket implements registry.Registry.
func (r *MessageRegistry) ProcessPacket(pkt transport.Packet) error {
	if pkt.Msg == nil {
		return xerrors.Errorf("packet without message")
	}

	r.RLock()
	e, ok := r.entries[pkt.Msg.Type]
	r.RUnlock()
	if !ok {
		return xerrors.Errorf("no callback for message type %q", pkt.Msg.Type)
	}

	msg, err := r.UnmarshalMessage(pkt.Msg, e.template)
	if err != nil {
		return err
	}

	err = e.exec(msg, pkt)
	if err != nil {
		return xerrors.Errorf("failed to process %s: %w", pkt.Msg.Type, err)
	}
	return nil
}

// MarshalMessage implements registry.Registry.
func (r *MessageRegistry) MarshalMessage(msg types.Message) (transport.Message, error) {
	data, err := json.Marshal(msg)
	if err != nil {
		return transport.Message{}, xerrors.Errorf("failed to marshal %s: %v", msg.Name(), err)
	}
	return transport.Message{Type: msg.Name(), Payload: data}, nil
}

// UnmarshalMessage decodes msg into a fresh value of the template's type.
func (r *MessageRegistry) UnmarshalMessage(msg *transport.Message, template types.Message) (types.Message, error) {
	res := template.NewEmpty()
	err := json.Unmarshal(msg.Payload, res)
	if err != nil {
		return nil, xerrors.Errorf("failed to unmarshal %s: %v", msg.Type, err)
	}
	return res, nil
}
