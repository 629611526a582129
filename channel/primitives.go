package channel

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/sha512"
	"fmt"
	"io"

	goecdh "github.com/wsddn/go-ecdh"
)

// Curve is the NIST P-256 curve used for the ephemeral key agreement.
// The card class and pairing string are "Basic"; all known Cryptnox
// device classes use P-256 for the handshake.
var Curve = elliptic.P256()

// PaddingMode selects the AES-CBC padding rule used by an encrypt/decrypt
// call.
type PaddingMode int

const (
	// PadBit is ISO/IEC 9797-1 Method 2: append 0x80 then 0x00 bytes to
	// the next 16-byte boundary. A full-block input still gets a whole
	// extra padding block.
	PadBit PaddingMode = iota
	// PadNone requires the input to already be a multiple of the block
	// size; it is an error otherwise.
	PadNone
)

const blockSize = aes.BlockSize // 16

// PadBitPad applies ISO/IEC 9797-1 Method 2 padding.
func PadBitPad(in []byte) []byte {
	out := make([]byte, len(in), len(in)+blockSize)
	copy(out, in)
	out = append(out, 0x80)
	for len(out)%blockSize != 0 {
		out = append(out, 0x00)
	}
	return out
}

// PadBitUnpad reverses PadBitPad. It returns an error if no 0x80
// terminator is found within the last block.
func PadBitUnpad(in []byte) ([]byte, error) {
	if len(in) == 0 || len(in)%blockSize != 0 {
		return nil, fmt.Errorf("padded input must be a non-zero multiple of %d bytes, got %d", blockSize, len(in))
	}
	for i := len(in) - 1; i >= len(in)-blockSize; i-- {
		switch in[i] {
		case 0x00:
			continue
		case 0x80:
			return in[:i], nil
		default:
			return nil, fmt.Errorf("invalid bit padding: byte %02X where 0x80 or 0x00 expected", in[i])
		}
	}
	return nil, fmt.Errorf("invalid bit padding: no 0x80 terminator found")
}

// CBCEncrypt encrypts data under key/iv with the given padding mode.
// key must be 16, 24, or 32 bytes (AES-128/192/256); the secure channel
// itself only ever uses 32-byte (AES-256) keys derived from SHA-512,
// but the primitive accepts any valid AES key length.
func CBCEncrypt(key, iv, data []byte, mode PaddingMode) ([]byte, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	if len(iv) != blockSize {
		return nil, fmt.Errorf("IV must be %d bytes, got %d", blockSize, len(iv))
	}

	var padded []byte
	switch mode {
	case PadBit:
		padded = PadBitPad(data)
	case PadNone:
		if len(data)%blockSize != 0 {
			return nil, fmt.Errorf("invalid length: data must be a multiple of %d bytes under PadNone, got %d", blockSize, len(data))
		}
		padded = data
	default:
		return nil, fmt.Errorf("unknown padding mode %v", mode)
	}

	ivCopy := append([]byte(nil), iv...)
	out := make([]byte, len(padded))
	cipher.NewCBCEncrypter(block, ivCopy).CryptBlocks(out, padded)
	return out, nil
}

// CBCDecrypt decrypts data under key/iv and removes padding per mode.
func CBCDecrypt(key, iv, data []byte, mode PaddingMode) ([]byte, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	if len(iv) != blockSize {
		return nil, fmt.Errorf("IV must be %d bytes, got %d", blockSize, len(iv))
	}
	if len(data) == 0 || len(data)%blockSize != 0 {
		return nil, fmt.Errorf("invalid length: ciphertext must be a non-zero multiple of %d bytes, got %d", blockSize, len(data))
	}

	ivCopy := append([]byte(nil), iv...)
	plain := make([]byte, len(data))
	cipher.NewCBCDecrypter(block, ivCopy).CryptBlocks(plain, data)

	switch mode {
	case PadBit:
		return PadBitUnpad(plain)
	case PadNone:
		return plain, nil
	default:
		return nil, fmt.Errorf("unknown padding mode %v", mode)
	}
}

// CBCMAC computes AES-CBC-MAC (zero IV, no padding) over data, which must
// already be a multiple of the block size — the caller is responsible
// for any zero-extension. The MAC is the final 16-byte ciphertext block.
func CBCMAC(key, data []byte) ([]byte, error) {
	if len(data) == 0 || len(data)%blockSize != 0 {
		return nil, fmt.Errorf("invalid length: MAC input must be a non-zero multiple of %d bytes, got %d", blockSize, len(data))
	}
	zeroIV := make([]byte, blockSize)
	out, err := CBCEncrypt(key, zeroIV, data, PadNone)
	if err != nil {
		return nil, err
	}
	return out[len(out)-blockSize:], nil
}

// SHA512 is the one-shot 64-byte digest used for session key derivation.
func SHA512(input []byte) []byte {
	sum := sha512.Sum512(input)
	return sum[:]
}

var ecdh256 = goecdh.NewEllipticECDH(Curve)

// EphemeralKeyPair is a single-use EC P-256 keypair, destroyed
// immediately after its one ECDH use.
type EphemeralKeyPair struct {
	Priv []byte // 32 bytes
	Pub  []byte // 64 bytes, X||Y, no 0x04 prefix
}

// GenerateEphemeralKeyPair produces a fresh P-256 keypair using rng,
// which must be cryptographically seeded before first use.
func GenerateEphemeralKeyPair(rng io.Reader) (*EphemeralKeyPair, error) {
	if rng == nil {
		rng = rand.Reader
	}
	privIface, pubIface, err := ecdh256.GenerateKey(rng)
	if err != nil {
		return nil, errEcdh(err)
	}
	priv, ok := privIface.([]byte)
	if !ok {
		return nil, errEcdh(fmt.Errorf("unexpected private key type from ECDH backend"))
	}
	wire := ecdh256.Marshal(pubIface)
	if len(wire) != 65 || wire[0] != 0x04 {
		return nil, errEcdh(fmt.Errorf("unexpected public key encoding (len=%d)", len(wire)))
	}

	priv32 := make([]byte, 32)
	// elliptic.GenerateKey's scalar is already 32 bytes for P-256, but
	// pad defensively in case a future backend returns a shorter scalar.
	copy(priv32[32-len(priv):], priv)

	return &EphemeralKeyPair{Priv: priv32, Pub: append([]byte(nil), wire[1:]...)}, nil
}

// SharedSecret computes the ECDH shared X-coordinate between priv and
// the peer's uncompressed public key (peerPub65: 0x04 || X || Y).
// Returns a left-zero-padded 32-byte result.
func SharedSecret(peerPub65, priv32 []byte) ([]byte, error) {
	if len(peerPub65) != 65 || peerPub65[0] != 0x04 {
		return nil, errEcdh(fmt.Errorf("peer public key must be 65 bytes with 0x04 prefix, got %d", len(peerPub65)))
	}
	pub, ok := ecdh256.Unmarshal(peerPub65)
	if !ok {
		return nil, errEcdh(fmt.Errorf("invalid peer public key point"))
	}
	secret, err := ecdh256.GenerateSharedSecret(append([]byte(nil), priv32...), pub)
	if err != nil {
		return nil, errEcdh(err)
	}
	if len(secret) == 0 || isAllZero(secret) {
		return nil, errEcdh(fmt.Errorf("shared secret computation returned zero"))
	}
	out := make([]byte, 32)
	if len(secret) > 32 {
		secret = secret[len(secret)-32:]
	}
	copy(out[32-len(secret):], secret)
	return out, nil
}

func isAllZero(b []byte) bool {
	for _, v := range b {
		if v != 0 {
			return false
		}
	}
	return true
}

// SeedRNG returns an io.Reader suitable for key generation. The default
// is crypto/rand, which is self-seeding on every supported platform;
// callers embedded on hardware without an OS CSPRNG must supply their
// own reader (e.g. fed from an analog-pin sample) through
// Options.RandReader — this function only provides the fallback.
func SeedRNG() io.Reader { return rand.Reader }

// RandomBytes draws n bytes from rng, defaulting to crypto/rand.
func RandomBytes(rng io.Reader, n int) ([]byte, error) {
	if rng == nil {
		rng = rand.Reader
	}
	buf := make([]byte, n)
	if _, err := io.ReadFull(rng, buf); err != nil {
		return nil, errRng(err)
	}
	return buf, nil
}

// Zeroize overwrites b with zeros in place.
func Zeroize(b []byte) {
	for i := range b {
		b[i] = 0
	}
}
