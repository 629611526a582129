package channel

// Transport is the APDU transport contract the engine borrows for the
// lifetime of a channel. It models the physical NFC/PN532 (or any
// ISO 7816-4 pass-through) link purely as send-command /
// receive-response; the engine never reaches into reader internals.
//
// Implementations must be synchronous: SendAPDU blocks until the
// transport returns a response or an error. A Transport is not safe
// for concurrent use by more than one Engine.
type Transport interface {
	// IsCardPresent reports whether a contactless target is currently
	// in the reader's field.
	IsCardPresent() bool

	// SendAPDU transmits cmd and returns the response body (excluding
	// the trailing SW1 SW2) plus the status word bytes.
	SendAPDU(cmd []byte) (resp []byte, sw1, sw2 byte, err error)

	// Reset idempotently resets the reader/target. Must be safe to call
	// without a card present.
	Reset()
}

// Sink is the minimal line-printing contract the engine accepts for
// optional debug output. Implementations that discard output are
// permitted; the engine must not rely on observable output, and must
// never pass key material or plaintext PIN to a Sink.
type Sink interface {
	Printf(format string, args ...any)
	PrintHex(label string, data []byte)
}

// NopSink discards everything. It is the Engine's default when no Sink
// is supplied.
type NopSink struct{}

func (NopSink) Printf(format string, args ...any) {}
func (NopSink) PrintHex(label string, data []byte) {}
