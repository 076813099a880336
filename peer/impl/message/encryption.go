package message

import (
	"crypto/rand"
	"encoding/json"
	"sync"

	"github.com/ethereum/go-ethereum/crypto/ecies"
	"go.dedis.ch/smpcreg/peer"
	"go.dedis.ch/smpcreg/transport"
	"go.dedis.ch/smpcreg/types"
	"golang.org/x/xerrors"
)

// EncryptionModule seals messages to the directory key of their recipient.
type EncryptionModule struct {
	*MessageModule
	conf *peer.Configuration

	privkey *ecies.PrivateKey

	sealedLock sync.RWMutex
	sealed     map[string]struct{}
}

func NewEncryptionModule(conf *peer.Configuration, messageModule *MessageModule) *EncryptionModule {
	m := EncryptionModule{
		MessageModule: messageModule,
		conf:          conf,
		sealed:        make(map[string]struct{}),
	}
	if conf.Key != nil {
		m.privkey = ecies.ImportECDSA(conf.Key)
	}

	// message registery
	m.conf.MessageRegistry.RegisterMessageCallback(types.EncryptedMessage{}, m.ProcessEncryptedMsg)

	return &m
}

/** Feature Functions **/

// SendEncrypted implements peer.Messaging
func (m *EncryptionModule) SendEncrypted(dest string, msg types.Message) error {
	tmsg, err := m.CreateMsg(msg)
	if err != nil {
		return err
	}
	encryptedMsg, err := m.encryptMsg(tmsg, dest)
	if err != nil {
		return err
	}
	return m.Unicast(dest, encryptedMsg)
}

// RequireEncrypted makes the node drop the given message types unless they
// arrive inside an encrypted message.
func (m *EncryptionModule) RequireEncrypted(msgs ...types.Message) {
	m.sealedLock.Lock()
	defer m.sealedLock.Unlock()

	for _, msg := range msgs {
		m.sealed[msg.Name()] = struct{}{}
	}
}

// EncryptAsymetric encrypts value using peer's pubkey
func (m *EncryptionModule) EncryptAsymetric(value []byte, peer string) ([]byte, error) {
	pubkey, ok := m.conf.Directory.PublicKey(peer)
	if !ok {
		return nil, xerrors.Errorf("no public key for peer %s", peer)
	}

	ctxt, err := ecies.Encrypt(rand.Reader, ecies.ImportECDSAPublic(pubkey), value, nil, nil)
	if err != nil {
		return nil, xerrors.Errorf("failed to encrypt for %s: %v", peer, err)
	}
	return ctxt, nil
}

// DecryptAsymetric decrypts value using self's key
func (m *EncryptionModule) DecryptAsymetric(value []byte) ([]byte, error) {
	if m.privkey == nil {
		return nil, xerrors.Errorf("node has no key")
	}
	ptxt, err := m.privkey.Decrypt(value, nil, nil)
	if err != nil {
		return nil, xerrors.Errorf("failed to decrypt: %v", err)
	}
	return ptxt, nil
}

/** Message Handler **/

// ProcessEncryptedMsg decrypts the message and dispatches the content with
// the header of the enclosing packet
func (m *EncryptionModule) ProcessEncryptedMsg(msg types.Message, pkt transport.Packet) error {
	encMsg, ok := msg.(*types.EncryptedMessage)
	if !ok {
		return xerrors.Errorf("wrong type: %T", msg)
	}

	inner, err := m.decryptMsg(*encMsg)
	if err != nil {
		return err
	}
	if inner.Type == (types.EncryptedMessage{}).Name() {
		return xerrors.Errorf("nested encrypted message from %s", pkt.Header.Source)
	}

	return m.conf.MessageRegistry.ProcessPacket(transport.Packet{
		Header: pkt.Header,
		Msg:    inner,
	})
}

/** Private Helpfer Functions **/

// checkSealed fails for a message type that must be encrypted.
func (m *EncryptionModule) checkSealed(msg *transport.Message) error {
	m.sealedLock.RLock()
	_, sealed := m.sealed[msg.Type]
	m.sealedLock.RUnlock()

	if sealed {
		return xerrors.Errorf("%s received in the clear", msg.Type)
	}
	return nil
}

// encryptMsg encrypts message using peer's pubkey
func (m *EncryptionModule) encryptMsg(msg transport.Message, peer string) (types.EncryptedMessage, error) {
	ptxt, err := json.Marshal(&msg)
	if err != nil {
		return nil, err
	}
	encMsg, err := m.EncryptAsymetric(ptxt, peer)
	if err != nil {
		return nil, err
	}

	return types.EncryptedMessage(encMsg), nil
}

// decryptMsg decrypts message using privkey
func (m *EncryptionModule) decryptMsg(encMsg types.EncryptedMessage) (*transport.Message, error) {
	ptxt, err := m.DecryptAsymetric(encMsg)
	if err != nil {
		return nil, err
	}

	var msg transport.Message
	err = json.Unmarshal(ptxt, &msg)
	if err != nil {
		return nil, err
	}

	return &msg, nil
}
