// Package channel implements an in-memory transport. Every socket created by
// the same Transport can reach the others; nothing leaves the process.
package channel

import (
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"go.dedis.ch/smpcreg/transport"
	"golang.org/x/xerrors"
)

// inboxSize bounds the packets queued for a socket that does not read.
const inboxSize = 4096

// NewTransport returns a new in-memory transport.
func NewTransport() *Transport {
	return &Transport{
		sockets:  make(map[string]*Socket),
		nextPort: 1,
	}
}

// Transport routes packets between the sockets it created.
//
// - implements transport.Transport
type Transport struct {
	sync.RWMutex
	sockets  map[string]*Socket
	nextPort int
}

// CreateSocket implements transport.Transport. An address ending in ":0" gets
// a fresh port.
func (t *Transport) CreateSocket(address string) (transport.ClosableSocket, error) {
	host, port, ok := strings.Cut(address, ":")
	if !ok {
		return nil, xerrors.Errorf("invalid address %s", address)
	}

	t.Lock()
	defer t.Unlock()

	if port == "0" {
		for {
			candidate := host + ":" + strconv.Itoa(t.nextPort)
			t.nextPort++
			if _, taken := t.sockets[candidate]; !taken {
				address = candidate
				break
			}
		}
	}
	if _, taken := t.sockets[address]; taken {
		return nil, xerrors.Errorf("address %s already in use", address)
	}

	s := &Socket{
		transport: t,
		myAddr:    address,
		inbox:     make(chan transport.Packet, inboxSize),
		closed:    make(chan struct{}),
	}
	t.sockets[address] = s
	return s, nil
}

func (t *Transport) lookup(address string) (*Socket, bool) {
	t.RLock()
	defer t.RUnlock()
	s, ok := t.sockets[address]
	return s, ok
}

func (t *Transport) remove(address string) {
	t.Lock()
	defer t.Unlock()
	delete(t.sockets, address)
}

// Socket is an in-memory socket.
//
// - implements transport.ClosableSocket
type Socket struct {
	transport *Transport
	myAddr    string
	inbox     chan transport.Packet

	closeOnce sync.Once
	closed    chan struct{}

	ins  transport.Traffic
	outs transport.Traffic
}

// Close implements transport.ClosableSocket. Packets sent to a closed socket
// fail.
func (s *Socket) Close() error {
	err := xerrors.Errorf("socket %s already closed", s.myAddr)
	s.closeOnce.Do(func() {
		s.transport.remove(s.myAddr)
		close(s.closed)
		err = nil
	})
	return err
}

// Send implements transport.Socket.
func (s *Socket) Send(dest string, pkt transport.Packet, timeout time.Duration) error {
	select {
	case <-s.closed:
		return xerrors.Errorf("socket %s is closed", s.myAddr)
	default:
	}

	peer, ok := s.transport.lookup(dest)
	if !ok {
		return xerrors.Errorf("no socket at %s", dest)
	}

	var expire <-chan time.Time
	if timeout != 0 {
		timer := time.NewTimer(timeout)
		defer timer.Stop()
		expire = timer.C
	}

	cp := pkt.Copy()
	select {
	case peer.inbox <- cp:
	case <-peer.closed:
		return xerrors.Errorf("socket %s is closed", dest)
	case <-expire:
		return transport.TimeoutError(timeout)
	}

	s.outs.Add(pkt)
	return nil
}

// Recv implements transport.Socket.
func (s *Socket) Recv(timeout time.Duration) (transport.Packet, error) {
	var expire <-chan time.Time
	if timeout != 0 {
		timer := time.NewTimer(timeout)
		defer timer.Stop()
		expire = timer.C
	}

	select {
	case pkt := <-s.inbox:
		s.ins.Add(pkt)
		return pkt, nil
	case <-s.closed:
		return transport.Packet{}, xerrors.Errorf("socket %s is closed", s.myAddr)
	case <-expire:
		return transport.Packet{}, transport.TimeoutError(timeout)
	}
}

// GetAddress implements transport.Socket.
func (s *Socket) GetAddress() string {
	return s.myAddr
}

// GetIns implements transport.Socket.
func (s *Socket) GetIns() []transport.Packet {
	return s.ins.All()
}

// GetOuts implements transport.Socket.
func (s *Socket) GetOuts() []transport.Packet {
	return s.outs.All()
}

func (s *Socket) String() string {
	return fmt.Sprintf("channel socket %s", s.myAddr)
}
