package types

// CorrelationKind names the correlated randomness dealt by the crypto provider.
type CorrelationKind string

const (
	// CorrelationElementwise is a triple (U, V, U o V); Dims = [rows, cols].
	CorrelationElementwise CorrelationKind = "elementwise"
	// CorrelationMatMul is a triple (U, V, U * V); Dims = [m, k, n].
	CorrelationMatMul CorrelationKind = "matmul"
	// CorrelationTruncation is a truncation pair (R, R >> f); Dims = [rows, cols].
	CorrelationTruncation CorrelationKind = "truncation"
)

// MatrixPayload carries a matrix over Z_p as base-16 text.
type MatrixPayload struct {
	Rows   int
	Cols   int
	Values []string
}

// MPCShareMessage delivers one party's share of a holder's input. It always
// travels inside an EncryptedMessage.
type MPCShareMessage struct {
	SessionID string
	Tag       string
	From      int
	Value     MatrixPayload
}

// MPCOpenMessage broadcasts a party's share of a value being opened.
type MPCOpenMessage struct {
	SessionID string
	Tag       string
	From      int
	Value     MatrixPayload
}

// CorrelationRequestMessage asks the crypto provider for the party's share of
// a correlation. Every party sends the same request for a given tag.
type CorrelationRequestMessage struct {
	SessionID string
	Tag       string
	From      int
	Kind      CorrelationKind
	Dims      []int
}

// CorrelationMessage answers a CorrelationRequestMessage. Parts is (U, V, W)
// for triples and (R, RHigh) for truncation pairs. Code is set on failure.
type CorrelationMessage struct {
	SessionID string
	Tag       string
	Kind      CorrelationKind
	Parts     []MatrixPayload
	Code      string
	Error     string
}

// AbortMessage tells the other parties that the sender gave up on a session.
type AbortMessage struct {
	SessionID string
	From      int
	Reason    string
}

// EncryptedMessage is an ECIES ciphertext of a marshalled transport.Message.
type EncryptedMessage []byte
