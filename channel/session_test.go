package channel

import (
	"bytes"
	"testing"
)

func TestSecureSessionLifecycle(t *testing.T) {
	s := NewSecureSession()
	if s.IsOpen() {
		t.Fatal("new session should be closed")
	}

	kEnc := bytes.Repeat([]byte{0xAA}, 32)
	kMac := bytes.Repeat([]byte{0xBB}, 32)
	iv := bytes.Repeat([]byte{0xCC}, 16)
	s.Install(kEnc, kMac, iv)

	if !s.IsOpen() {
		t.Fatal("session should be open after Install")
	}
	if !bytes.Equal(s.KEnc(), kEnc) || !bytes.Equal(s.KMac(), kMac) || !bytes.Equal(s.IV(), iv) {
		t.Fatal("installed key material not reflected by accessors")
	}

	newIV := bytes.Repeat([]byte{0xDD}, 16)
	s.RollIV(newIV)
	if !bytes.Equal(s.IV(), newIV) {
		t.Fatal("RollIV did not update the IV")
	}
	if !bytes.Equal(s.KEnc(), kEnc) {
		t.Fatal("RollIV should not touch kEnc")
	}

	s.Clear()
	if s.IsOpen() {
		t.Fatal("session should be closed after Clear")
	}
	if !bytes.Equal(s.KEnc(), make([]byte, 32)) {
		t.Fatal("kEnc not zeroized after Clear")
	}
	if !bytes.Equal(s.KMac(), make([]byte, 32)) {
		t.Fatal("kMac not zeroized after Clear")
	}
	if !bytes.Equal(s.IV(), make([]byte, 16)) {
		t.Fatal("iv not zeroized after Clear")
	}
}

func TestSecureSessionClearIsIdempotent(t *testing.T) {
	s := NewSecureSession()
	s.Clear()
	s.Clear()
	if s.IsOpen() {
		t.Fatal("double Clear should not reopen the session")
	}
}
