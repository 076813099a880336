// Package udp implements the transport over UDP datagrams, one packet per
// datagram.
package udp

import (
	"errors"
	"net"
	"os"
	"sync"
	"time"

	"go.dedis.ch/smpcreg/transport"
	"golang.org/x/xerrors"
)

// MaxDatagram is the largest encoded packet a socket sends or accepts.
const MaxDatagram = 65000

// NewUDP returns a new udp transport implementation.
func NewUDP() transport.Transport {
	return &UDP{}
}

// UDP creates sockets bound to local UDP ports.
//
// - implements transport.Transport
type UDP struct{}

// CreateSocket implements transport.Transport. Port 0 binds a free port,
// which GetAddress then reports.
func (UDP) CreateSocket(address string) (transport.ClosableSocket, error) {
	addr, err := resolve(address)
	if err != nil {
		return nil, err
	}

	conn, err := net.ListenUDP("udp", addr)
	if err != nil {
		return nil, xerrors.Errorf("failed to listen on %s: %v", address, err)
	}

	return &Socket{
		conn:   conn,
		myAddr: conn.LocalAddr().String(),
		peers:  make(map[string]*net.UDPAddr),
		buf:    make([]byte, MaxDatagram),
	}, nil
}

// Socket is a UDP socket. Send may be called concurrently; Recv is meant for
// a single reading goroutine.
//
// - implements transport.ClosableSocket
type Socket struct {
	sync.Mutex
	conn   *net.UDPConn
	myAddr string
	peers  map[string]*net.UDPAddr

	readLock sync.Mutex
	buf      []byte

	ins  transport.Traffic
	outs transport.Traffic
}

// Close implements transport.ClosableSocket. Closing twice fails.
func (s *Socket) Close() error {
	s.Lock()
	defer s.Unlock()

	if s.conn == nil {
		return xerrors.Errorf("socket %s already closed", s.myAddr)
	}
	err := s.conn.Close()
	s.conn = nil
	return err
}

// Send implements transport.Socket. A packet larger than MaxDatagram once
// encoded fails with transport.ErrPacketTooLarge and is not sent.
func (s *Socket) Send(dest string, pkt transport.Packet, timeout time.Duration) error {
	conn, to, err := s.route(dest)
	if err != nil {
		return err
	}

	buf, err := pkt.Marshal()
	if err != nil {
		return err
	}
	if len(buf) > MaxDatagram {
		return xerrors.Errorf("%s is %d bytes, datagrams carry %d: %w",
			pkt, len(buf), MaxDatagram, transport.ErrPacketTooLarge)
	}

	err = conn.SetWriteDeadline(deadline(timeout))
	if err != nil {
		return err
	}
	_, err = conn.WriteToUDP(buf, to)
	if err != nil {
		return timeoutOr(err, timeout)
	}

	s.outs.Add(pkt)
	return nil
}

// Recv implements transport.Socket. It returns a transport.TimeoutError once
// timeout elapses without a datagram.
func (s *Socket) Recv(timeout time.Duration) (transport.Packet, error) {
	var pkt transport.Packet

	conn, err := s.getConn()
	if err != nil {
		return pkt, err
	}
	err = conn.SetReadDeadline(deadline(timeout))
	if err != nil {
		return pkt, err
	}

	s.readLock.Lock()
	defer s.readLock.Unlock()

	n, _, err := conn.ReadFromUDP(s.buf)
	if err != nil {
		return pkt, timeoutOr(err, timeout)
	}
	err = pkt.Unmarshal(s.buf[:n])
	if err != nil {
		return pkt, err
	}

	s.ins.Add(pkt)
	return pkt, nil
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

func (s *Socket) getConn() (*net.UDPConn, error) {
	s.Lock()
	defer s.Unlock()

	if s.conn == nil {
		return nil, xerrors.Errorf("socket %s is closed", s.myAddr)
	}
	return s.conn, nil
}

// route returns the connection and the resolved address of dest. Resolved
// addresses are kept for the life of the socket.
func (s *Socket) route(dest string) (*net.UDPConn, *net.UDPAddr, error) {
	s.Lock()
	defer s.Unlock()

	if s.conn == nil {
		return nil, nil, xerrors.Errorf("socket %s is closed", s.myAddr)
	}
	to, ok := s.peers[dest]
	if !ok {
		var err error
		to, err = resolve(dest)
		if err != nil {
			return nil, nil, err
		}
		s.peers[dest] = to
	}
	return s.conn, to, nil
}

// resolve accepts host:port addresses whose host, if any, is an IP.
func resolve(address string) (*net.UDPAddr, error) {
	host, _, err := net.SplitHostPort(address)
	if err != nil || (host != "" && net.ParseIP(host) == nil) {
		return nil, xerrors.Errorf("invalid address %s", address)
	}
	addr, err := net.ResolveUDPAddr("udp", address)
	if err != nil {
		return nil, xerrors.Errorf("invalid address %s: %v", address, err)
	}
	return addr, nil
}

func deadline(timeout time.Duration) time.Time {
	if timeout == 0 {
		return time.Time{}
	}
	return time.Now().Add(timeout)
}

func timeoutOr(err error, timeout time.Duration) error {
	if errors.Is(err, os.ErrDeadlineExceeded) {
		return transport.TimeoutError(timeout)
	}
	return err
}
