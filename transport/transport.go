// Package transport defines the packet model shared by every party and the
// socket abstraction the transports implement.
package transport

import (
	"crypto/ecdsa"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/golang/snappy"
	"github.com/rs/xid"
	"golang.org/x/xerrors"
)

// Transport creates sockets.
type Transport interface {
	CreateSocket(address string) (ClosableSocket, error)
}

// Socket sends and receives packets. A zero timeout means no timeout.
type Socket interface {
	Send(dest string, pkt Packet, timeout time.Duration) error
	Recv(timeout time.Duration) (Packet, error)

	// GetAddress returns the address the socket is bound to.
	GetAddress() string

	GetIns() []Packet
	GetOuts() []Packet
}

// ClosableSocket is a socket that can be closed.
type ClosableSocket interface {
	Socket
	Close() error
}

// TimeoutError is returned by Recv and Send when the timeout is reached.
type TimeoutError time.Duration

// Error implements error.
func (err TimeoutError) Error() string {
	return fmt.Sprintf("timeout reached after %d", err)
}

// Is implements the errors.Is interface, matching any TimeoutError.
func (TimeoutError) Is(err error) bool {
	_, ok := err.(TimeoutError)
	return ok
}

// ErrPacketTooLarge is returned by Send when the encoded packet exceeds what
// the transport can carry in one piece.
var ErrPacketTooLarge = xerrors.New("packet too large")

// Packet is the unit exchanged between sockets.
type Packet struct {
	Header *Header
	Msg    *Message
}

// Message carries a typed payload, the type being the registered name.
type Message struct {
	Type    string
	Payload json.RawMessage
}

// Header holds the routing and authentication data of a packet.
type Header struct {
	PacketID    string
	Timestamp   int64
	Source      string
	RelayedBy   string
	Destination string
	TTL         uint

	// Signature is a secp256k1 signature of the packet digest by the source.
	Signature []byte
}

// NewHeader returns a header with a fresh packet id.
func NewHeader(source, relay, dest string, ttl uint) Header {
	return Header{
		PacketID:    xid.New().String(),
		Timestamp:   time.Now().UnixNano(),
		Source:      source,
		RelayedBy:   relay,
		Destination: dest,
		TTL:         ttl,
	}
}

// Copy returns a deep copy of the packet.
func (p Packet) Copy() Packet {
	res := Packet{}
	if p.Header != nil {
		h := *p.Header
		h.Signature = append([]byte(nil), p.Header.Signature...)
		res.Header = &h
	}
	if p.Msg != nil {
		m := Message{Type: p.Msg.Type, Payload: append(json.RawMessage(nil), p.Msg.Payload...)}
		res.Msg = &m
	}
	return res
}

// Marshal encodes the packet as snappy-compressed JSON.
func (p *Packet) Marshal() ([]byte, error) {
	buf, err := json.Marshal(p)
	if err != nil {
		return nil, xerrors.Errorf("failed to marshal packet: %v", err)
	}
	return snappy.Encode(nil, buf), nil
}

// Unmarshal decodes a buffer produced by Marshal.
func (p *Packet) Unmarshal(buf []byte) error {
	raw, err := snappy.Decode(nil, buf)
	if err != nil {
		return xerrors.Errorf("failed to decompress packet: %v", err)
	}
	err = json.Unmarshal(raw, p)
	if err != nil {
		return xerrors.Errorf("failed to unmarshal packet: %v", err)
	}
	if p.Header == nil || p.Msg == nil {
		return xerrors.Errorf("incomplete packet")
	}
	return nil
}

// Digest hashes the fields covered by the signature. The relay is excluded
// so that forwarding does not invalidate it.
func (p *Packet) Digest() []byte {
	var num [16]byte
	binary.BigEndian.PutUint64(num[:8], uint64(p.Header.Timestamp))
	binary.BigEndian.PutUint64(num[8:], uint64(p.Header.TTL))

	return crypto.Keccak256(
		[]byte(p.Header.PacketID),
		num[:],
		[]byte(p.Header.Source),
		[]byte(p.Header.Destination),
		[]byte(p.Msg.Type),
		p.Msg.Payload,
	)
}

// Sign signs the packet digest with key.
func (p *Packet) Sign(key *ecdsa.PrivateKey) error {
	sig, err := crypto.Sign(p.Digest(), key)
	if err != nil {
		return xerrors.Errorf("failed to sign packet: %v", err)
	}
	p.Header.Signature = sig
	return nil
}

// Signer recovers the address of the key that signed the packet.
func (p *Packet) Signer() (common.Address, error) {
	if len(p.Header.Signature) != crypto.SignatureLength {
		return common.Address{}, xerrors.Errorf("packet %s is not signed", p.Header.PacketID)
	}
	pub, err := crypto.SigToPub(p.Digest(), p.Header.Signature)
	if err != nil {
		return common.Address{}, xerrors.Errorf("invalid signature on %s: %v", p.Header.PacketID, err)
	}
	return crypto.PubkeyToAddress(*pub), nil
}

func (p Packet) String() string {
	if p.Header == nil || p.Msg == nil {
		return "{incomplete packet}"
	}
	return fmt.Sprintf("{%s %s -> %s (%s), %d bytes}", p.Msg.Type, p.Header.Source,
		p.Header.Destination, p.Header.PacketID, len(p.Msg.Payload))
}
