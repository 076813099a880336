package udp

import (
	"crypto/rand"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.dedis.ch/smpcreg/transport"
)

func Test_udp_send_recv(t *testing.T) {
	tr := NewUDP()

	a, err := tr.CreateSocket("127.0.0.1:0")
	require.NoError(t, err)
	defer a.Close()
	b, err := tr.CreateSocket("127.0.0.1:0")
	require.NoError(t, err)
	defer b.Close()

	h := transport.NewHeader(a.GetAddress(), a.GetAddress(), b.GetAddress(), 0)
	pkt := transport.Packet{Header: &h, Msg: &transport.Message{Type: "abort", Payload: []byte(`{"Reason":"x"}`)}}

	require.NoError(t, a.Send(b.GetAddress(), pkt, time.Second))
	res, err := b.Recv(time.Second)
	require.NoError(t, err)
	require.Equal(t, h.PacketID, res.Header.PacketID)
	require.Len(t, b.GetIns(), 1)
	require.Len(t, a.GetOuts(), 1)
}

func Test_udp_timeout_and_close(t *testing.T) {
	tr := NewUDP()

	a, err := tr.CreateSocket("127.0.0.1:0")
	require.NoError(t, err)

	_, err = a.Recv(20 * time.Millisecond)
	require.True(t, errors.Is(err, transport.TimeoutError(0)))

	require.NoError(t, a.Close())
	require.Error(t, a.Close())

	_, err = tr.CreateSocket("not an address")
	require.Error(t, err)
}

func Test_udp_oversize_packet(t *testing.T) {
	tr := NewUDP()

	a, err := tr.CreateSocket("127.0.0.1:0")
	require.NoError(t, err)
	defer a.Close()
	b, err := tr.CreateSocket("127.0.0.1:0")
	require.NoError(t, err)
	defer b.Close()

	// random bytes do not compress below the datagram limit
	payload := make([]byte, 2*MaxDatagram)
	_, err = rand.Read(payload)
	require.NoError(t, err)
	blob, err := json.Marshal(payload)
	require.NoError(t, err)

	h := transport.NewHeader(a.GetAddress(), a.GetAddress(), b.GetAddress(), 0)
	pkt := transport.Packet{Header: &h, Msg: &transport.Message{Type: "mpcopen", Payload: blob}}

	err = a.Send(b.GetAddress(), pkt, time.Second)
	require.True(t, errors.Is(err, transport.ErrPacketTooLarge))
	require.Empty(t, a.GetOuts())

	_, err = b.Recv(20 * time.Millisecond)
	require.True(t, errors.Is(err, transport.TimeoutError(0)))
}
