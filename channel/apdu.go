package channel

import (
	"fmt"

	"golang.org/x/crypto/cryptobyte"
	cryptobyte_asn1 "golang.org/x/crypto/cryptobyte/asn1"
)

// Wire-level constants.
var (
	// AID is the 7-byte Cryptnox wallet application identifier.
	AID = []byte{0xA0, 0x00, 0x00, 0x10, 0x00, 0x01, 0x12}

	// PairingString is the fixed 32-byte ASCII pairing-key material for
	// the "Basic" device class.
	PairingString = []byte("Cryptnox Basic CommonPairingData")
)

// opcInitialIV is the AES-CBC IV used to encrypt the host's random R
// during mutual authentication, before any session IV exists.
var opcInitialIV = [16]byte{1, 1, 1, 1, 1, 1, 1, 1, 1, 1, 1, 1, 1, 1, 1, 1}

const (
	claWallet = 0x80
	claISO    = 0x00

	insSelect          = 0xA4
	insGetCertificate  = 0xF8
	insOpenChannel     = 0x10
	insMutualAuth      = 0x11
	insVerifyPIN       = 0x20
	insGetCardInfo     = 0xFA

	// swOK1, swOK2 are the success status word sentinel (9000).
	swOK1, swOK2 = 0x90, 0x00

	// maxCiphertextLen is the ciphertext-length bound imposed by the
	// one-byte encrypted-length field (encryptedLength+16 must fit a
	// uint8); see SPEC_FULL.md §6.1.
	maxCiphertextLen = 239
)

// Command is a value type describing one ISO 7816-4 APDU to send.
type Command struct {
	CLA, INS, P1, P2 byte
	Data             []byte
}

// Bytes serializes the command as CLA INS P1 P2 Lc Data (short form,
// no Le byte — every APDU in this protocol is a case-3 command).
func (c Command) Bytes() []byte {
	out := make([]byte, 0, 5+len(c.Data))
	out = append(out, c.CLA, c.INS, c.P1, c.P2)
	if len(c.Data) > 0 {
		out = append(out, byte(len(c.Data)))
		out = append(out, c.Data...)
	} else {
		out = append(out, 0x00)
	}
	return out
}

// Response is the value type returned by a transport exchange, with
// the trailing SW1 SW2 already split off.
type Response struct {
	Data     []byte
	SW1, SW2 byte
}

// OK reports whether SW1 SW2 == 9000.
func (r Response) OK() bool { return r.SW1 == swOK1 && r.SW2 == swOK2 }

// SelectCommand builds the wallet applet SELECT APDU.
func SelectCommand() Command {
	return Command{CLA: claISO, INS: insSelect, P1: 0x04, P2: 0x00, Data: AID}
}

// GetCardCertificateCommand builds the GET CARD CERTIFICATE APDU, with
// an 8-byte host-chosen nonce the card will echo back.
func GetCardCertificateCommand(nonce []byte) (Command, error) {
	if len(nonce) != 8 {
		return Command{}, fmt.Errorf("host nonce must be 8 bytes, got %d", len(nonce))
	}
	return Command{CLA: claWallet, INS: insGetCertificate, P1: 0x00, P2: 0x00, Data: nonce}, nil
}

// OpenSecureChannelCommand builds the OPEN SECURE CHANNEL APDU carrying
// the host's uncompressed ephemeral public key.
func OpenSecureChannelCommand(hostPub64 []byte) (Command, error) {
	if len(hostPub64) != 64 {
		return Command{}, fmt.Errorf("host public key must be 64 bytes (X||Y), got %d", len(hostPub64))
	}
	data := make([]byte, 0, 65)
	data = append(data, 0x04)
	data = append(data, hostPub64...)
	return Command{CLA: claWallet, INS: insOpenChannel, P1: 0x00, P2: 0x00, Data: data}, nil
}

// CardCertificate is the parsed GET CARD CERTIFICATE response body.
// The signature field is retained only long enough to extract the
// card's ephemeral public key; it is never cryptographically verified.
type CardCertificate struct {
	FormatID      byte
	Nonce         [8]byte
	CardEphPub65  [65]byte // 0x04 || X || Y
	Signature     [72]byte
}

const certificateBodyLen = 1 + 8 + 65 + 72 // 146

// ParseCardCertificate validates and parses the GET CARD CERTIFICATE
// response data (excluding SW1 SW2), rejecting any length or shape
// that does not match the fixed certificate layout.
func ParseCardCertificate(data []byte, expectedNonce []byte) (*CardCertificate, error) {
	if len(data) != certificateBodyLen {
		return nil, errUnexpectedLength(certificateBodyLen, len(data))
	}
	if data[0] != 'C' {
		return nil, errInvalidCertificate(fmt.Sprintf("format id byte = %02X, want 'C'", data[0]))
	}
	if data[9] != 0x04 {
		return nil, errInvalidCertificate(fmt.Sprintf("offset 9 (point marker) = %02X, want 0x04", data[9]))
	}
	if len(expectedNonce) == 8 {
		for i := 0; i < 8; i++ {
			if data[1+i] != expectedNonce[i] {
				return nil, errInvalidCertificate("echoed nonce does not match host nonce")
			}
		}
	}

	cert := &CardCertificate{FormatID: data[0]}
	copy(cert.Nonce[:], data[1:9])
	copy(cert.CardEphPub65[:], data[9:74])
	copy(cert.Signature[:], data[74:146])
	return cert, nil
}

// CheckSignatureShape performs a structural (non-cryptographic) sanity
// check that the signature field holds a plausible DER SEQUENCE of two
// INTEGERs, without validating the signature itself. It exists only
// for channel.Options.StrictCertificateShape; the default path never
// calls it.
func CheckSignatureShape(sig []byte) error {
	// The field is a fixed 72-byte slot; the actual DER signature may be
	// shorter (70-72 bytes) and zero-padded at the end, so we only
	// require that a valid DER SEQUENCE(INTEGER, INTEGER) parses as a
	// prefix of the slot.
	s := cryptobyte.String(sig)
	var seq cryptobyte.String
	if !s.ReadASN1(&seq, cryptobyte_asn1.SEQUENCE) {
		return errInvalidCertificate("signature is not a DER SEQUENCE")
	}
	var r, sInt cryptobyte.String
	if !seq.ReadASN1(&r, cryptobyte_asn1.INTEGER) {
		return errInvalidCertificate("signature SEQUENCE missing first INTEGER (r)")
	}
	if !seq.ReadASN1(&sInt, cryptobyte_asn1.INTEGER) {
		return errInvalidCertificate("signature SEQUENCE missing second INTEGER (s)")
	}
	return nil
}

// buildSecureMessage encrypts plaintext under (kEnc, encIV) with bit
// padding, then computes the CBC-MAC over the header-plus-Lc block
// followed by the ciphertext, and assembles the transmitted APDU
// bytes. Returns the APDU, the sent MAC (needed by the caller both to
// transmit and, for ordinary secure commands, as the decrypt IV for
// the response — see the asymmetry documented on unwrapSecureResponse),
// and the ciphertext.
func buildSecureMessage(kEnc, kMac, encIV []byte, header4 [4]byte, plaintext []byte) (apdu, sentMAC, ciphertext []byte, err error) {
	c, err := CBCEncrypt(kEnc, encIV, plaintext, PadBit)
	if err != nil {
		return nil, nil, nil, err
	}
	if len(c) > maxCiphertextLen {
		return nil, nil, nil, errInvalidLength(fmt.Sprintf("ciphertext length %d exceeds maximum %d", len(c), maxCiphertextLen))
	}

	lc := byte(len(c) + 16)
	macIn := make([]byte, 0, 16+len(c))
	macIn = append(macIn, header4[:]...)
	macIn = append(macIn, lc)
	macIn = append(macIn, make([]byte, 11)...)
	macIn = append(macIn, c...)

	mac, err := CBCMAC(kMac, macIn)
	if err != nil {
		return nil, nil, nil, err
	}

	out := make([]byte, 0, 5+16+len(c))
	out = append(out, header4[:]...)
	out = append(out, lc)
	out = append(out, mac...)
	out = append(out, c...)
	return out, mac, c, nil
}

// unwrapSecureResponse verifies and decrypts a secure-messaging
// response, returning the plaintext and the new rolling IV (the
// response's own MAC). sentMAC is the MAC this host sent with the
// command that produced resp — it is the decrypt IV. The card encrypts
// its reply under the MAC the host just sent, not under the MAC the
// card is about to compute for the reply itself, so sentMAC must not
// be "corrected" to the received MAC.
func unwrapSecureResponse(kEnc, kMac, sentMAC, respData []byte) (plaintext, newIV []byte, err error) {
	if len(respData) < 16 {
		return nil, nil, errUnexpectedLength(16, len(respData))
	}
	respMAC := respData[:16]
	cipherText := respData[16:]
	if len(cipherText)%16 != 0 {
		return nil, nil, errUnexpectedLength(0, len(cipherText))
	}

	macIn := make([]byte, 0, 16+len(cipherText))
	macIn = append(macIn, byte(len(cipherText)))
	macIn = append(macIn, make([]byte, 15)...)
	macIn = append(macIn, cipherText...)

	computed, err := CBCMAC(kMac, macIn)
	if err != nil {
		return nil, nil, err
	}
	if !constantTimeEqual(computed, respMAC) {
		return nil, nil, errMacMismatch()
	}

	plain, err := CBCDecrypt(kEnc, sentMAC, cipherText, PadBit)
	if err != nil {
		return nil, nil, err
	}
	return plain, respMAC, nil
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
