package channel

import (
	"fmt"
	"io"
)

// State is the protocol engine's state machine position.
type State int

const (
	StateIdle State = iota
	StateSelected
	StateCertReceived
	StateOPCSent
	StateAuthenticated
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "Idle"
	case StateSelected:
		return "Selected"
	case StateCertReceived:
		return "CertReceived"
	case StateOPCSent:
		return "OPCSent"
	case StateAuthenticated:
		return "Authenticated"
	default:
		return "Unknown"
	}
}

// Options configures an Engine. The zero value is a usable default:
// crypto/rand for randomness, a no-op debug sink, no certificate shape
// checking, and the standard "Basic" pairing secret.
type Options struct {
	// RandReader overrides the RNG used for nonces, ephemeral keys and
	// the mutual-authentication random R. Defaults to crypto/rand.
	// Tests supply a deterministic reader here.
	RandReader io.Reader

	// Sink receives optional hex-dump/line debug output. Defaults to
	// NopSink.
	Sink Sink

	// PairingSecret overrides the fixed pairing-key string. Defaults to
	// PairingString ("Cryptnox Basic CommonPairingData"). Only tests
	// should override this.
	PairingSecret []byte

	// StrictCertificateShape turns on a structural (non-cryptographic)
	// DER sanity check of the card certificate's signature field. Off
	// by default: the signature is never cryptographically verified
	// either way.
	StrictCertificateShape bool
}

func (o Options) rng() io.Reader {
	if o.RandReader != nil {
		return o.RandReader
	}
	return SeedRNG()
}

func (o Options) sink() Sink {
	if o.Sink != nil {
		return o.Sink
	}
	return NopSink{}
}

func (o Options) pairingSecret() []byte {
	if len(o.PairingSecret) > 0 {
		return o.PairingSecret
	}
	return PairingString
}

// Engine is the Cryptnox secure channel protocol engine: the state
// machine connecting the transport, the APDU codec, and the session.
// It owns ordering, error handling and rolling-IV updates. An Engine
// is not safe for concurrent use.
type Engine struct {
	transport Transport
	opts      Options
	session   *SecureSession
	state     State
}

// NewEngine creates an Engine bound to transport for the lifetime of
// one channel. The transport is borrowed, not owned: the caller is
// responsible for its lifecycle beyond Disconnect.
func NewEngine(transport Transport, opts Options) *Engine {
	return &Engine{
		transport: transport,
		opts:      opts,
		session:   NewSecureSession(),
		state:     StateIdle,
	}
}

// State returns the engine's current state machine position.
func (e *Engine) State() State { return e.state }

// IsOpen reports whether the secure session is currently established.
func (e *Engine) IsOpen() bool { return e.session.IsOpen() }

// Connect establishes the authenticated, encrypted channel: it checks
// for a card, then runs the full handshake.
func (e *Engine) Connect() error {
	if !e.transport.IsCardPresent() {
		return errNoCard()
	}
	return e.establishSecureChannel()
}

func (e *Engine) transmit(cmd []byte) (*Response, error) {
	data, sw1, sw2, err := e.transport.SendAPDU(cmd)
	e.opts.sink().PrintHex("apdu->", cmd)
	if err != nil {
		return nil, errTransport(err)
	}
	e.opts.sink().PrintHex("apdu<-", append(append([]byte(nil), data...), sw1, sw2))
	return &Response{Data: data, SW1: sw1, SW2: sw2}, nil
}

// establishSecureChannel runs the handshake steps a-j below. On any
// failure it clears the session and returns to Idle before returning
// the error.
func (e *Engine) establishSecureChannel() (err error) {
	defer func() {
		if err != nil {
			e.session.Clear()
			e.state = StateIdle
		}
	}()

	// a. SELECT wallet AID.
	resp, err := e.transmit(SelectCommand().Bytes())
	if err != nil {
		return err
	}
	if !resp.OK() {
		return errUnexpectedSW(resp.SW1, resp.SW2)
	}
	e.state = StateSelected

	// b. GET CARD CERTIFICATE with a random host nonce.
	nonce, err := RandomBytes(e.opts.rng(), 8)
	if err != nil {
		return err
	}
	certCmd, err := GetCardCertificateCommand(nonce)
	if err != nil {
		return err
	}
	resp, err = e.transmit(certCmd.Bytes())
	if err != nil {
		return err
	}
	if !resp.OK() {
		return errUnexpectedSW(resp.SW1, resp.SW2)
	}
	if len(resp.Data) != certificateBodyLen {
		return errUnexpectedLength(certificateBodyLen, len(resp.Data))
	}
	cert, err := ParseCardCertificate(resp.Data, nonce)
	if err != nil {
		return err
	}
	if e.opts.StrictCertificateShape {
		if err := CheckSignatureShape(cert.Signature[:]); err != nil {
			return err
		}
	}
	e.state = StateCertReceived

	// c. Host ephemeral keypair.
	hostKP, err := GenerateEphemeralKeyPair(e.opts.rng())
	if err != nil {
		return err
	}

	// d. OPEN SECURE CHANNEL.
	opcCmd, err := OpenSecureChannelCommand(hostKP.Pub)
	if err != nil {
		Zeroize(hostKP.Priv)
		return err
	}
	resp, err = e.transmit(opcCmd.Bytes())
	if err != nil {
		Zeroize(hostKP.Priv)
		return err
	}
	if !resp.OK() {
		Zeroize(hostKP.Priv)
		return errUnexpectedSW(resp.SW1, resp.SW2)
	}
	if len(resp.Data) != 32 {
		Zeroize(hostKP.Priv)
		return errUnexpectedLength(32, len(resp.Data))
	}
	salt := append([]byte(nil), resp.Data...)
	e.state = StateOPCSent

	// e. ECDH shared secret.
	cardEphPub := append([]byte(nil), cert.CardEphPub65[:]...)
	z, err := SharedSecret(cardEphPub, hostKP.Priv)
	Zeroize(hostKP.Priv)
	if err != nil {
		return err
	}

	// f. SHA-512 key derivation.
	kdfInput := make([]byte, 0, len(z)+len(e.opts.pairingSecret())+len(salt))
	kdfInput = append(kdfInput, z...)
	kdfInput = append(kdfInput, e.opts.pairingSecret()...)
	kdfInput = append(kdfInput, salt...)
	digest := SHA512(kdfInput)
	Zeroize(z)
	Zeroize(kdfInput)
	kEnc := append([]byte(nil), digest[:32]...)
	kMac := append([]byte(nil), digest[32:64]...)
	Zeroize(digest)

	// g-i. Mutual authenticate: encrypt a fresh random R under the
	// not-yet-installed session keys with the fixed OPC initial IV, and
	// MAC the wrapped command exactly as a secure-messaging wrapper
	// would, then transmit it.
	R, err := RandomBytes(e.opts.rng(), 32)
	if err != nil {
		Zeroize(kEnc)
		Zeroize(kMac)
		return err
	}
	header4 := [4]byte{claWallet, insMutualAuth, 0x00, 0x00}
	apdu, _, _, err := buildSecureMessage(kEnc, kMac, opcInitialIV[:], header4, R)
	Zeroize(R)
	if err != nil {
		Zeroize(kEnc)
		Zeroize(kMac)
		return err
	}

	resp, err = e.transmit(apdu)
	if err != nil {
		Zeroize(kEnc)
		Zeroize(kMac)
		return err
	}
	if !resp.OK() {
		Zeroize(kEnc)
		Zeroize(kMac)
		return errUnexpectedSW(resp.SW1, resp.SW2)
	}
	if len(resp.Data) != 64 { // 16-byte MAC + 48-byte ciphertext
		Zeroize(kEnc)
		Zeroize(kMac)
		return errUnexpectedLength(64, len(resp.Data))
	}

	// j. Install session with the card's response MAC as the initial
	// rolling IV. Not verified here — the mutual-auth response is
	// trusted structurally, unlike every command that follows it.
	e.session.Install(kEnc, kMac, resp.Data[:16])
	Zeroize(kEnc)
	Zeroize(kMac)
	e.state = StateAuthenticated

	return nil
}

// SendSecureCommand is the generic secure-messaging wrapper for any
// application command. It rejects the call if the session is not open,
// rolls the rolling IV on any response whose MAC verifies (even an
// application-status failure), and only clears the session on a
// cryptographic/transport failure.
func (e *Engine) SendSecureCommand(cla, ins, p1, p2 byte, data []byte) ([]byte, byte, byte, error) {
	if !e.session.IsOpen() {
		return nil, 0, 0, errSessionClosed()
	}

	header4 := [4]byte{cla, ins, p1, p2}
	apdu, sentMAC, _, err := buildSecureMessage(e.session.KEnc(), e.session.KMac(), e.session.IV(), header4, data)
	if err != nil {
		return nil, 0, 0, err
	}

	resp, err := e.transmit(apdu)
	if err != nil {
		e.session.Clear()
		e.state = StateIdle
		return nil, 0, 0, err
	}

	plaintext, newIV, err := unwrapSecureResponse(e.session.KEnc(), e.session.KMac(), sentMAC, resp.Data)
	if err != nil {
		e.session.Clear()
		e.state = StateIdle
		return nil, resp.SW1, resp.SW2, err
	}
	e.session.RollIV(newIV)

	if !resp.OK() {
		return plaintext, resp.SW1, resp.SW2, errAppStatus(resp.SW1, resp.SW2, plaintext)
	}
	return plaintext, resp.SW1, resp.SW2, nil
}

// VerifyPIN sends the VERIFY PIN command with an ASCII PIN of at most
// 8 bytes.
func (e *Engine) VerifyPIN(pin string) ([]byte, byte, byte, error) {
	if len(pin) > 8 {
		return nil, 0, 0, errInvalidLength(fmt.Sprintf("PIN must be at most 8 bytes, got %d", len(pin)))
	}
	return e.SendSecureCommand(claWallet, insVerifyPIN, 0x00, 0x00, []byte(pin))
}

// GetCardInfo sends the GET CARD INFO command.
func (e *Engine) GetCardInfo() ([]byte, byte, byte, error) {
	return e.SendSecureCommand(claWallet, insGetCardInfo, 0x00, 0x00, []byte{0x00})
}

// Disconnect zeroizes the session and resets the transport,
// unconditionally returning to Idle. It is idempotent: calling it on
// an already-closed session performs the zeroize/reset again but
// surfaces no error.
func (e *Engine) Disconnect() {
	e.session.Clear()
	e.transport.Reset()
	e.state = StateIdle
}
