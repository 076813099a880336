// Package message implements how a node sends, receives and authenticates
// packets.
package message

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"
	"go.dedis.ch/smpcreg/peer"
	"go.dedis.ch/smpcreg/transport"
	"go.dedis.ch/smpcreg/types"
	"golang.org/x/xerrors"
)

const ReadTimeout = time.Millisecond * 100
const WriteTimeout = time.Second

// MessageModule signs, sends and dispatches packets for a node.
//
// - implements peer.Messaging
type MessageModule struct {
	conf *peer.Configuration

	*EncryptionModule
}

var _ peer.Messaging = (*MessageModule)(nil)

func NewMessageModule(conf *peer.Configuration) *MessageModule {
	m := MessageModule{
		conf: conf,
	}
	m.EncryptionModule = NewEncryptionModule(conf, &m)

	return &m
}

/** Feature Functions **/

// CreateMsg creates a new transport message for the given payload
func (m *MessageModule) CreateMsg(payload types.Message) (transport.Message, error) {
	return m.conf.MessageRegistry.MarshalMessage(payload)
}

// Unicast implements peer.Messaging
func (m *MessageModule) Unicast(dest string, msg types.Message) error {
	tmsg, err := m.CreateMsg(msg)
	if err != nil {
		return err
	}
	return m.send(dest, tmsg)
}

// Broadcast implements peer.Messaging. It tries every destination and
// reports the first failure.
func (m *MessageModule) Broadcast(dests []string, msg types.Message) error {
	tmsg, err := m.CreateMsg(msg)
	if err != nil {
		return err
	}

	var first error
	for _, dest := range dests {
		if dest == m.conf.Socket.GetAddress() {
			continue
		}
		err = m.send(dest, tmsg)
		if err != nil && first == nil {
			first = err
		}
	}
	return first
}

/** Daemon **/

// MessagingDaemon starts a new loop to listen to the message
func (m *MessageModule) MessagingDaemon(ctx context.Context) {
	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			default:
				pkt, err := m.conf.Socket.Recv(ReadTimeout)
				if xerrors.Is(err, transport.TimeoutError(0)) {
					continue
				}
				if err != nil {
					select {
					case <-ctx.Done():
						return
					default:
					}
					log.Warn().Str("node", m.conf.Socket.GetAddress()).Err(err).Msg("receive failed")
					time.Sleep(ReadTimeout)
					continue
				}
				err = m.ProcessPkt(pkt)
				if err != nil {
					log.Warn().Str("node", m.conf.Socket.GetAddress()).Err(err).
						Msgf("dropped %s", pkt)
				}
			}
		}
	}()
}

// ProcessPkt authenticates a received packet and runs its callback.
func (m *MessageModule) ProcessPkt(pkt transport.Packet) error {
	if pkt.Header == nil || pkt.Msg == nil {
		return xerrors.Errorf("incomplete packet")
	}
	if pkt.Header.Destination != m.conf.Socket.GetAddress() {
		return xerrors.Errorf("packet for %s", pkt.Header.Destination)
	}

	signer, err := pkt.Signer()
	if err != nil {
		return err
	}
	err = m.conf.Directory.Authorize(pkt.Header.Source, signer)
	if err != nil {
		return err
	}
	err = m.checkSealed(pkt.Msg)
	if err != nil {
		return err
	}

	return m.conf.MessageRegistry.ProcessPacket(pkt)
}

/** Private Helpfer Functions **/

// send signs and sends a message to dest
func (m *MessageModule) send(dest string, msg transport.Message) error {
	header := transport.NewHeader(
		m.conf.Socket.GetAddress(),
		m.conf.Socket.GetAddress(),
		dest,
		0)
	pkt := transport.Packet{Header: &header, Msg: &msg}

	err := pkt.Sign(m.conf.Key)
	if err != nil {
		return err
	}

	err = m.conf.Socket.Send(dest, pkt, WriteTimeout)
	if err != nil {
		return xerrors.Errorf("failed to send %s to %s: %w", msg.Type, dest, err)
	}
	return nil
}
