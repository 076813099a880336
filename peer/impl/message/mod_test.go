package message

import (
	"context"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/require"
	"go.dedis.ch/smpcreg/peer"
	"go.dedis.ch/smpcreg/registry"
	"go.dedis.ch/smpcreg/transport"
	"go.dedis.ch/smpcreg/transport/channel"
	"go.dedis.ch/smpcreg/types"
)

type testNode struct {
	conf    *peer.Configuration
	module  *MessageModule
	aborts  chan *types.AbortMessage
	sources chan string
}

// newNodes creates three nodes on the same in-memory network: two parties
// and a provider, in that order.
func newNodes(t *testing.T) []*testNode {
	tr := channel.NewTransport()

	nodes := make([]*testNode, 3)
	members := make([]peer.Member, 3)
	for i := range nodes {
		sock, err := tr.CreateSocket("127.0.0.1:0")
		require.NoError(t, err)
		t.Cleanup(func() { sock.Close() })

		key, err := crypto.GenerateKey()
		require.NoError(t, err)

		nodes[i] = &testNode{
			conf: &peer.Configuration{
				Socket:          sock,
				MessageRegistry: registry.NewRegistry(),
				Key:             key,
			},
			aborts:  make(chan *types.AbortMessage, 10),
			sources: make(chan string, 10),
		}
		members[i] = peer.Member{Address: sock.GetAddress(), Public: &key.PublicKey}
	}

	dir, err := peer.NewDirectory(members[:2], members[2])
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	for _, n := range nodes {
		n := n
		n.conf.Directory = dir
		n.module = NewMessageModule(n.conf)
		n.conf.MessageRegistry.RegisterMessageCallback(types.AbortMessage{},
			func(msg types.Message, pkt transport.Packet) error {
				n.aborts <- msg.(*types.AbortMessage)
				n.sources <- pkt.Header.Source
				return nil
			})
		n.module.MessagingDaemon(ctx)
	}
	return nodes
}

func (n *testNode) nextAbort(t *testing.T) *types.AbortMessage {
	select {
	case msg := <-n.aborts:
		return msg
	case <-time.After(2 * time.Second):
		t.Fatal("no message received")
		return nil
	}
}

func Test_message_unicast(t *testing.T) {
	nodes := newNodes(t)

	err := nodes[0].module.Unicast(nodes[1].conf.Socket.GetAddress(), types.AbortMessage{SessionID: "s", Reason: "hi"})
	require.NoError(t, err)

	msg := nodes[1].nextAbort(t)
	require.Equal(t, "hi", msg.Reason)
	require.Equal(t, nodes[0].conf.Socket.GetAddress(), <-nodes[1].sources)
}

func Test_message_broadcast_skips_self(t *testing.T) {
	nodes := newNodes(t)

	dests := nodes[0].conf.Directory.Addresses()
	dests = append(dests, nodes[0].conf.Directory.Provider())
	require.NoError(t, nodes[0].module.Broadcast(dests, types.AbortMessage{Reason: "all"}))

	require.Equal(t, "all", nodes[1].nextAbort(t).Reason)
	require.Equal(t, "all", nodes[2].nextAbort(t).Reason)

	select {
	case <-nodes[0].aborts:
		t.Fatal("sender received its own broadcast")
	case <-time.After(50 * time.Millisecond):
	}
}

func Test_message_encrypted(t *testing.T) {
	nodes := newNodes(t)

	dest := nodes[2].conf.Socket.GetAddress()
	require.NoError(t, nodes[1].module.SendEncrypted(dest, types.AbortMessage{Reason: "secret"}))

	msg := nodes[2].nextAbort(t)
	require.Equal(t, "secret", msg.Reason)

	// only ciphertext travelled
	outs := nodes[1].conf.Socket.GetOuts()
	require.Len(t, outs, 1)
	require.Equal(t, "encrypted", outs[0].Msg.Type)
	require.NotContains(t, string(outs[0].Msg.Payload), "secret")
}

func Test_message_rejects_forged_signature(t *testing.T) {
	nodes := newNodes(t)

	tmsg, err := nodes[0].module.CreateMsg(types.AbortMessage{Reason: "forged"})
	require.NoError(t, err)

	h := transport.NewHeader(nodes[0].conf.Socket.GetAddress(), nodes[0].conf.Socket.GetAddress(),
		nodes[1].conf.Socket.GetAddress(), 0)
	pkt := transport.Packet{Header: &h, Msg: &tmsg}

	// signed by party 1 while claiming to be party 0
	require.NoError(t, pkt.Sign(nodes[1].conf.Key))
	require.Error(t, nodes[1].module.ProcessPkt(pkt))

	// unsigned
	pkt.Header.Signature = nil
	require.Error(t, nodes[1].module.ProcessPkt(pkt))

	require.NoError(t, pkt.Sign(nodes[0].conf.Key))
	require.NoError(t, nodes[1].module.ProcessPkt(pkt))
	require.Equal(t, "forged", nodes[1].nextAbort(t).Reason)
}

func Test_message_undecryptable(t *testing.T) {
	nodes := newNodes(t)

	enc := types.EncryptedMessage([]byte("garbage"))
	err := nodes[0].module.ProcessEncryptedMsg(&enc, transport.Packet{})
	require.Error(t, err)
}

func Test_message_require_encrypted(t *testing.T) {
	nodes := newNodes(t)
	nodes[1].module.RequireEncrypted(types.AbortMessage{})

	tmsg, err := nodes[0].module.CreateMsg(types.AbortMessage{Reason: "clear"})
	require.NoError(t, err)
	h := transport.NewHeader(nodes[0].conf.Socket.GetAddress(), nodes[0].conf.Socket.GetAddress(),
		nodes[1].conf.Socket.GetAddress(), 0)
	pkt := transport.Packet{Header: &h, Msg: &tmsg}
	require.NoError(t, pkt.Sign(nodes[0].conf.Key))

	err = nodes[1].module.ProcessPkt(pkt)
	require.Error(t, err)
	require.Contains(t, err.Error(), "in the clear")

	require.NoError(t, nodes[0].module.SendEncrypted(nodes[1].conf.Socket.GetAddress(),
		types.AbortMessage{Reason: "sealed"}))
	require.Equal(t, "sealed", nodes[1].nextAbort(t).Reason)

	// other nodes still take it in the clear
	require.NoError(t, nodes[0].module.Unicast(nodes[2].conf.Socket.GetAddress(),
		types.AbortMessage{Reason: "clear"}))
	require.Equal(t, "clear", nodes[2].nextAbort(t).Reason)
}
