package transport

import (
	"io"
	"math/big"

	"golang.org/x/crypto/cryptobyte"
	cryptobyte_asn1 "golang.org/x/crypto/cryptobyte/asn1"

	"cryptnox/channel"
)

// MockCard is a deterministic, in-process stand-in for a physical
// Cryptnox card. It implements channel.Transport by playing the card
// side of the handshake and secure-messaging wrapper entirely in
// software, so the Engine can be driven end-to-end without hardware.
//
// MockCard is built for tests: its fault-injection knobs
// (ForceStatusWord, CorruptNextResponse, Present) let a test reproduce
// every recoverable and fatal failure path without a real reader.
type MockCard struct {
	rng io.Reader

	// Present controls IsCardPresent. Defaults to true.
	Present bool

	// ForceStatusWord, if non-zero, overrides the status word of the
	// next secure command response (simulating an application-level
	// failure such as a wrong PIN) without disturbing the MAC/crypto.
	ForceStatusWord [2]byte

	// CorruptNextResponse inverts the first byte of the next response's MAC,
	// simulating transmission corruption or a MITM (triggers
	// KindMacMismatch on the host).
	CorruptNextResponse bool

	// CorruptCertificateMarker replaces the next GET CARD CERTIFICATE
	// response's uncompressed-point marker byte (normally 0x04) with an
	// invalid 0x03, simulating a corrupted or malicious certificate
	// (triggers KindInvalidCertificate on the host before any ECDH is
	// attempted). One-shot: cleared after the next certificate fetch.
	CorruptCertificateMarker bool

	selected    bool
	hostNonce   []byte
	cardEphPriv []byte
	cardEphPub  []byte // 64 bytes X||Y
	kEnc        []byte
	kMac        []byte
	ivState     []byte
	verifyCount int
	pairing     []byte
}

// NewMockCard returns a present, freshly reset mock card. rng seeds the
// card's own ephemeral key generation; pass a deterministic reader for
// reproducible tests.
func NewMockCard(rng io.Reader, pairingSecret []byte) *MockCard {
	if len(pairingSecret) == 0 {
		pairingSecret = channel.PairingString
	}
	return &MockCard{rng: rng, Present: true, pairing: pairingSecret}
}

// IsCardPresent implements channel.Transport.
func (m *MockCard) IsCardPresent() bool { return m.Present }

// Reset implements channel.Transport, returning the card to its
// unselected, unauthenticated state.
func (m *MockCard) Reset() {
	m.selected = false
	m.hostNonce = nil
	m.cardEphPriv = nil
	m.cardEphPub = nil
	m.kEnc = nil
	m.kMac = nil
	m.ivState = nil
}

// SendAPDU implements channel.Transport by dispatching on INS.
func (m *MockCard) SendAPDU(cmd []byte) ([]byte, byte, byte, error) {
	if len(cmd) < 5 {
		return nil, 0x67, 0x00, nil
	}
	ins := cmd[1]
	lc := int(cmd[4])
	var data []byte
	if lc > 0 && len(cmd) >= 5+lc {
		data = cmd[5 : 5+lc]
	}

	switch ins {
	case 0xA4: // SELECT
		m.selected = true
		return nil, 0x90, 0x00, nil
	case 0xF8: // GET CARD CERTIFICATE
		return m.handleGetCertificate(data)
	case 0x10: // OPEN SECURE CHANNEL
		return m.handleOpenSecureChannel(data)
	case 0x11: // MUTUAL AUTHENTICATE
		return m.handleSecureExchange(cmd, data, true)
	default: // any other secure command (VERIFY PIN, GET CARD INFO, ...)
		return m.handleSecureExchange(cmd, data, false)
	}
}

func (m *MockCard) handleGetCertificate(nonce []byte) ([]byte, byte, byte, error) {
	if len(nonce) != 8 {
		return nil, 0x6A, 0x86, nil
	}
	m.hostNonce = append([]byte(nil), nonce...)

	kp, err := channel.GenerateEphemeralKeyPair(m.rng)
	if err != nil {
		return nil, 0x6F, 0x00, nil
	}
	m.cardEphPriv = kp.Priv
	m.cardEphPub = kp.Pub

	marker := byte(0x04)
	if m.CorruptCertificateMarker {
		marker = 0x03
		m.CorruptCertificateMarker = false
	}

	body := make([]byte, 0, 146)
	body = append(body, 'C')
	body = append(body, nonce...)
	body = append(body, marker)
	body = append(body, m.cardEphPub...)
	body = append(body, fixedShapeSignature()...)
	return body, 0x90, 0x00, nil
}

func (m *MockCard) handleOpenSecureChannel(data []byte) ([]byte, byte, byte, error) {
	if len(data) != 65 || data[0] != 0x04 {
		return nil, 0x6A, 0x80, nil
	}
	hostPub := data

	z, err := channel.SharedSecret(hostPub, m.cardEphPriv)
	if err != nil {
		return nil, 0x6F, 0x00, nil
	}
	salt, err := channel.RandomBytes(m.rng, 32)
	if err != nil {
		return nil, 0x6F, 0x00, nil
	}

	kdfInput := make([]byte, 0, len(z)+len(m.pairing)+len(salt))
	kdfInput = append(kdfInput, z...)
	kdfInput = append(kdfInput, m.pairing...)
	kdfInput = append(kdfInput, salt...)
	digest := channel.SHA512(kdfInput)
	m.kEnc = append([]byte(nil), digest[:32]...)
	m.kMac = append([]byte(nil), digest[32:64]...)

	return salt, 0x90, 0x00, nil
}

// handleSecureExchange plays the card side of the generic
// secure-messaging wrapper for both MUTUAL AUTHENTICATE and ordinary
// secure commands. isMutualAuth controls whether the
// decrypt IV is the fixed opcInitialIV-equivalent (mutual auth) or the
// card's own rolling ivState (ordinary commands), and whether the
// response is trusted or processed as an application command.
func (m *MockCard) handleSecureExchange(rawCmd, body []byte, isMutualAuth bool) ([]byte, byte, byte, error) {
	if len(body) < 16 {
		return nil, 0x67, 0x00, nil
	}
	header4 := [4]byte{rawCmd[0], rawCmd[1], rawCmd[2], rawCmd[3]}
	lc := byte(len(body)) // body is already mac||ciphertext; len(body) == the outer Lc byte
	sentMAC := body[:16]
	cipherText := body[16:]
	if len(cipherText)%16 != 0 {
		return nil, 0x67, 0x00, nil
	}

	macIn := make([]byte, 0, 16+len(cipherText))
	macIn = append(macIn, header4[:]...)
	macIn = append(macIn, lc)
	macIn = append(macIn, make([]byte, 11)...)
	macIn = append(macIn, cipherText...)
	computedMAC, err := channel.CBCMAC(m.kMac, macIn)
	if err != nil || !constantTimeEqual(computedMAC, sentMAC) {
		return nil, 0x69, 0x88, nil // SW for MAC/security failure
	}

	decryptIV := m.ivState
	if isMutualAuth {
		decryptIV = fixedOPCInitialIV()
	}
	plaintext, err := channel.CBCDecrypt(m.kEnc, decryptIV, cipherText, channel.PadBit)
	if err != nil {
		return nil, 0x69, 0x88, nil
	}

	var respPlain []byte
	sw1, sw2 := byte(0x90), byte(0x00)
	if isMutualAuth {
		respPlain = plaintext // echo the host's random R
	} else {
		respPlain, sw1, sw2 = m.handleApplicationCommand(rawCmd[1], plaintext)
	}

	respCipher, err := channel.CBCEncrypt(m.kEnc, sentMAC, respPlain, channel.PadBit)
	if err != nil {
		return nil, 0x6F, 0x00, nil
	}
	respMacIn := make([]byte, 0, 16+len(respCipher))
	respMacIn = append(respMacIn, byte(len(respCipher)))
	respMacIn = append(respMacIn, make([]byte, 15)...)
	respMacIn = append(respMacIn, respCipher...)
	respMAC, err := channel.CBCMAC(m.kMac, respMacIn)
	if err != nil {
		return nil, 0x6F, 0x00, nil
	}

	m.ivState = append([]byte(nil), respMAC...)

	if m.CorruptNextResponse {
		respMAC = append([]byte(nil), respMAC...)
		respMAC[0] ^= 0xFF
		m.CorruptNextResponse = false
	}
	if m.ForceStatusWord != ([2]byte{}) {
		sw1, sw2 = m.ForceStatusWord[0], m.ForceStatusWord[1]
		m.ForceStatusWord = [2]byte{}
	}

	out := make([]byte, 0, 16+len(respCipher))
	out = append(out, respMAC...)
	out = append(out, respCipher...)
	return out, sw1, sw2, nil
}

// handleApplicationCommand implements the mock's trivial application
// layer: VERIFY PIN ("1234" is correct) and GET CARD INFO (returns a
// fixed info blob). Unknown instructions return a no-such-INS status.
func (m *MockCard) handleApplicationCommand(ins byte, plaintext []byte) ([]byte, byte, byte) {
	switch ins {
	case 0x20: // VERIFY PIN
		m.verifyCount++
		if string(plaintext) == "1234" {
			return []byte{0x03}, 0x90, 0x00
		}
		return []byte{0x02}, 0x63, 0xC2 // wrong PIN, 2 tries remaining
	case 0xFA: // GET CARD INFO
		return []byte("cryptnox-mock-v1"), 0x90, 0x00
	default:
		return nil, 0x6D, 0x00
	}
}

func constantTimeEqual(a, b []byte) bool {
	if len(a) != len(b) {
		return false
	}
	var diff byte
	for i := range a {
		diff |= a[i] ^ b[i]
	}
	return diff == 0
}

func fixedOPCInitialIV() []byte {
	iv := make([]byte, 16)
	for i := range iv {
		iv[i] = 1
	}
	return iv
}

// fixedShapeSignature returns a deterministic 72-byte slot holding a
// structurally valid DER SEQUENCE(INTEGER, INTEGER), zero-padded to
// fill the slot, so tests exercising StrictCertificateShape can use a
// card that passes the check without any real signing key.
func fixedShapeSignature() []byte {
	r := big.NewInt(1)
	s := big.NewInt(2)

	var seq cryptobyte.Builder
	seq.AddASN1(cryptobyte_asn1.SEQUENCE, func(inner *cryptobyte.Builder) {
		inner.AddASN1BigInt(r)
		inner.AddASN1BigInt(s)
	})
	out, err := seq.Bytes()
	if err != nil {
		out = nil
	}
	for len(out) < 72 {
		out = append(out, 0x00)
	}
	return out[:72]
}
