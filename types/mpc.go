package types

import "fmt"

// -----------------------------------------------------------------------------
// MPCShareMessage

// NewEmpty implements types.Message.
func (m MPCShareMessage) NewEmpty() Message {
	return &MPCShareMessage{}
}

// Name implements types.Message.
func (MPCShareMessage) Name() string {
	return "mpcshare"
}

// String implements types.Message.
func (m MPCShareMessage) String() string {
	return fmt.Sprintf("{mpc share for %s/%s from %d: %dx%d}", m.SessionID, m.Tag, m.From, m.Value.Rows, m.Value.Cols)
}

// HTML implements types.Message.
func (m MPCShareMessage) HTML() string {
	return m.String()
}

// -----------------------------------------------------------------------------
// MPCOpenMessage

// NewEmpty implements types.Message.
func (m MPCOpenMessage) NewEmpty() Message {
	return &MPCOpenMessage{}
}

// Name implements types.Message.
func (MPCOpenMessage) Name() string {
	return "mpcopen"
}

// String implements types.Message.
func (m MPCOpenMessage) String() string {
	return fmt.Sprintf("{mpc open for %s/%s from %d: %dx%d}", m.SessionID, m.Tag, m.From, m.Value.Rows, m.Value.Cols)
}

// HTML implements types.Message.
func (m MPCOpenMessage) HTML() string {
	return m.String()
}

// -----------------------------------------------------------------------------
// CorrelationRequestMessage

// NewEmpty implements types.Message.
func (m CorrelationRequestMessage) NewEmpty() Message {
	return &CorrelationRequestMessage{}
}

// Name implements types.Message.
func (CorrelationRequestMessage) Name() string {
	return "correlationrequest"
}

// String implements types.Message.
func (m CorrelationRequestMessage) String() string {
	return fmt.Sprintf("{%s request for %s/%s from %d: %v}", m.Kind, m.SessionID, m.Tag, m.From, m.Dims)
}

// HTML implements types.Message.
func (m CorrelationRequestMessage) HTML() string {
	return m.String()
}

// -----------------------------------------------------------------------------
// CorrelationMessage

// NewEmpty implements types.Message.
func (m CorrelationMessage) NewEmpty() Message {
	return &CorrelationMessage{}
}

// Name implements types.Message.
func (CorrelationMessage) Name() string {
	return "correlation"
}

// String implements types.Message.
func (m CorrelationMessage) String() string {
	if m.Code != "" {
		return fmt.Sprintf("{%s for %s/%s failed: %s}", m.Kind, m.SessionID, m.Tag, m.Error)
	}
	return fmt.Sprintf("{%s for %s/%s: %d parts}", m.Kind, m.SessionID, m.Tag, len(m.Parts))
}

// HTML implements types.Message.
func (m CorrelationMessage) HTML() string {
	return m.String()
}

// -----------------------------------------------------------------------------
// AbortMessage

// NewEmpty implements types.Message.
func (m AbortMessage) NewEmpty() Message {
	return &AbortMessage{}
}

// Name implements types.Message.
func (AbortMessage) Name() string {
	return "abort"
}

// String implements types.Message.
func (m AbortMessage) String() string {
	return fmt.Sprintf("{abort %s by %d: %s}", m.SessionID, m.From, m.Reason)
}

// HTML implements types.Message.
func (m AbortMessage) HTML() string {
	return m.String()
}

// -----------------------------------------------------------------------------
// EncryptedMessage

// NewEmpty implements types.Message.
func (m EncryptedMessage) NewEmpty() Message {
	return &EncryptedMessage{}
}

// Name implements types.Message.
func (EncryptedMessage) Name() string {
	return "encrypted"
}

// String implements types.Message.
func (m EncryptedMessage) String() string {
	return fmt.Sprintf("{encrypted: %d bytes}", len(m))
}

// HTML implements types.Message.
func (m EncryptedMessage) HTML() string {
	return m.String()
}
