package channel

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.dedis.ch/smpcreg/transport"
)

func packet(src, dst string) transport.Packet {
	h := transport.NewHeader(src, src, dst, 0)
	return transport.Packet{Header: &h, Msg: &transport.Message{Type: "abort", Payload: []byte(`{}`)}}
}

func Test_channel_send_recv(t *testing.T) {
	tr := NewTransport()

	a, err := tr.CreateSocket("127.0.0.1:0")
	require.NoError(t, err)
	b, err := tr.CreateSocket("127.0.0.1:0")
	require.NoError(t, err)
	require.NotEqual(t, a.GetAddress(), b.GetAddress())

	pkt := packet(a.GetAddress(), b.GetAddress())
	require.NoError(t, a.Send(b.GetAddress(), pkt, time.Second))

	res, err := b.Recv(time.Second)
	require.NoError(t, err)
	require.Equal(t, pkt.Header.PacketID, res.Header.PacketID)

	require.Len(t, a.GetOuts(), 1)
	require.Len(t, b.GetIns(), 1)
}

func Test_channel_recv_timeout(t *testing.T) {
	tr := NewTransport()
	a, err := tr.CreateSocket("127.0.0.1:0")
	require.NoError(t, err)

	_, err = a.Recv(10 * time.Millisecond)
	require.True(t, errors.Is(err, transport.TimeoutError(0)))
}

func Test_channel_closed_and_unknown(t *testing.T) {
	tr := NewTransport()
	a, err := tr.CreateSocket("127.0.0.1:0")
	require.NoError(t, err)
	b, err := tr.CreateSocket("127.0.0.1:0")
	require.NoError(t, err)

	require.Error(t, a.Send("127.0.0.1:999", packet(a.GetAddress(), "127.0.0.1:999"), time.Second))

	require.NoError(t, b.Close())
	require.Error(t, b.Close())
	require.Error(t, a.Send(b.GetAddress(), packet(a.GetAddress(), b.GetAddress()), time.Second))

	_, err = b.Recv(time.Second)
	require.Error(t, err)
}

func Test_channel_fixed_address(t *testing.T) {
	tr := NewTransport()
	_, err := tr.CreateSocket("127.0.0.1:7000")
	require.NoError(t, err)
	_, err = tr.CreateSocket("127.0.0.1:7000")
	require.Error(t, err)
	_, err = tr.CreateSocket("nope")
	require.Error(t, err)
}
