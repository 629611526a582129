package channel

import (
	"bytes"
	"encoding/hex"
	"testing"
)

func TestPadBitPadUnpad(t *testing.T) {
	cases := []struct {
		name string
		in   []byte
	}{
		{"empty", []byte{}},
		{"partial block", []byte{0x01, 0x02, 0x03}},
		{"exact block", bytes.Repeat([]byte{0xAA}, 16)},
		{"multi block", bytes.Repeat([]byte{0x42}, 33)},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			padded := PadBitPad(c.in)
			if len(padded)%blockSize != 0 {
				t.Fatalf("padded length %d not a block multiple", len(padded))
			}
			if len(c.in) > 0 && len(padded) == len(c.in) {
				t.Fatalf("padding did not add any bytes")
			}
			got, err := PadBitUnpad(padded)
			if err != nil {
				t.Fatalf("unpad: %v", err)
			}
			if !bytes.Equal(got, c.in) {
				t.Fatalf("roundtrip mismatch: got %x, want %x", got, c.in)
			}
		})
	}
}

func TestPadBitUnpadRejectsMissingTerminator(t *testing.T) {
	bad := bytes.Repeat([]byte{0x00}, 16)
	if _, err := PadBitUnpad(bad); err == nil {
		t.Fatal("expected error for all-zero block with no 0x80 terminator")
	}
}

func TestCBCEncryptDecryptRoundtrip(t *testing.T) {
	key := bytes.Repeat([]byte{0x01}, 32)
	iv := bytes.Repeat([]byte{0x02}, 16)
	plain := []byte("a cryptnox secure message body")

	ct, err := CBCEncrypt(key, iv, plain, PadBit)
	if err != nil {
		t.Fatalf("encrypt: %v", err)
	}
	pt, err := CBCDecrypt(key, iv, ct, PadBit)
	if err != nil {
		t.Fatalf("decrypt: %v", err)
	}
	if !bytes.Equal(pt, plain) {
		t.Fatalf("roundtrip mismatch: got %q, want %q", pt, plain)
	}
}

func TestCBCEncryptPadNoneRejectsUnalignedInput(t *testing.T) {
	key := bytes.Repeat([]byte{0x01}, 16)
	iv := make([]byte, 16)
	if _, err := CBCEncrypt(key, iv, []byte{0x01, 0x02, 0x03}, PadNone); err == nil {
		t.Fatal("expected error for non-block-aligned input under PadNone")
	}
}

// NIST-unaffiliated but internally consistent CBC-MAC vector: MAC is
// deterministic and changes when any input byte changes.
func TestCBCMACDeterministicAndSensitive(t *testing.T) {
	key := bytes.Repeat([]byte{0x5A}, 32)
	data := bytes.Repeat([]byte{0x00}, 32)

	mac1, err := CBCMAC(key, data)
	if err != nil {
		t.Fatalf("mac: %v", err)
	}
	mac2, err := CBCMAC(key, data)
	if err != nil {
		t.Fatalf("mac: %v", err)
	}
	if !bytes.Equal(mac1, mac2) {
		t.Fatalf("CBC-MAC is not deterministic")
	}
	if len(mac1) != 16 {
		t.Fatalf("MAC length = %d, want 16", len(mac1))
	}

	tampered := append([]byte(nil), data...)
	tampered[0] ^= 0x01
	mac3, err := CBCMAC(key, tampered)
	if err != nil {
		t.Fatalf("mac: %v", err)
	}
	if bytes.Equal(mac1, mac3) {
		t.Fatalf("CBC-MAC did not change for a tampered input")
	}
}

func TestCBCMACRejectsUnalignedInput(t *testing.T) {
	key := make([]byte, 32)
	if _, err := CBCMAC(key, []byte{0x01, 0x02}); err == nil {
		t.Fatal("expected error for non-block-aligned MAC input")
	}
}

func TestSHA512KnownVector(t *testing.T) {
	// echo -n "abc" | sha512sum
	want, _ := hex.DecodeString(
		"ddaf35a193617abacc417349ae20413112e6fa4e89a97ea20a9eeee64b55d39a2192992a274fc1a836ba3c23a3feebbd454d4423643ce80e2a9ac94fa54ca49")
	got := SHA512([]byte("abc"))
	if !bytes.Equal(got, want) {
		t.Fatalf("SHA512(\"abc\") = %x, want %x", got, want)
	}
}

func TestGenerateEphemeralKeyPairAndSharedSecretAgree(t *testing.T) {
	rng := deterministicReader(1)
	a, err := GenerateEphemeralKeyPair(rng)
	if err != nil {
		t.Fatalf("generate a: %v", err)
	}
	rng2 := deterministicReader(2)
	b, err := GenerateEphemeralKeyPair(rng2)
	if err != nil {
		t.Fatalf("generate b: %v", err)
	}

	aPub65 := append([]byte{0x04}, a.Pub...)
	bPub65 := append([]byte{0x04}, b.Pub...)

	secretFromA, err := SharedSecret(bPub65, a.Priv)
	if err != nil {
		t.Fatalf("shared secret from a: %v", err)
	}
	secretFromB, err := SharedSecret(aPub65, b.Priv)
	if err != nil {
		t.Fatalf("shared secret from b: %v", err)
	}
	if !bytes.Equal(secretFromA, secretFromB) {
		t.Fatalf("ECDH shared secrets disagree: %x != %x", secretFromA, secretFromB)
	}
}

func TestSharedSecretRejectsMalformedPeerKey(t *testing.T) {
	rng := deterministicReader(3)
	kp, err := GenerateEphemeralKeyPair(rng)
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if _, err := SharedSecret([]byte{0x01, 0x02}, kp.Priv); err == nil {
		t.Fatal("expected error for malformed peer public key")
	}
}

func TestZeroize(t *testing.T) {
	b := []byte{1, 2, 3, 4}
	Zeroize(b)
	for i, v := range b {
		if v != 0 {
			t.Fatalf("byte %d not zeroed: %d", i, v)
		}
	}
}

// deterministicReader returns a seeded, reproducible byte stream for
// tests that need two independent-but-repeatable keypairs.
func deterministicReader(seed byte) *xorShiftReader {
	return &xorShiftReader{state: uint32(seed)*0x9E3779B1 + 1}
}

type xorShiftReader struct{ state uint32 }

func (r *xorShiftReader) Read(p []byte) (int, error) {
	for i := range p {
		r.state ^= r.state << 13
		r.state ^= r.state >> 17
		r.state ^= r.state << 5
		p[i] = byte(r.state)
	}
	return len(p), nil
}
