package transport

import (
	"crypto/rand"
	"testing"
)

func TestMockCardSelectAndReset(t *testing.T) {
	card := NewMockCard(rand.Reader, nil)
	if !card.IsCardPresent() {
		t.Fatal("new mock card should report present")
	}
	_, sw1, sw2, err := card.SendAPDU([]byte{0x00, 0xA4, 0x04, 0x00, 0x07, 0xA0, 0x00, 0x00, 0x10, 0x00, 0x01, 0x12})
	if err != nil {
		t.Fatalf("select: %v", err)
	}
	if sw1 != 0x90 || sw2 != 0x00 {
		t.Fatalf("SW = %02X%02X, want 9000", sw1, sw2)
	}

	card.Reset()
	if card.kEnc != nil || card.kMac != nil {
		t.Fatal("Reset should clear session key material")
	}
}

func TestMockCardRejectsShortAPDU(t *testing.T) {
	card := NewMockCard(rand.Reader, nil)
	_, sw1, sw2, _ := card.SendAPDU([]byte{0x00, 0xA4})
	if sw1 != 0x67 {
		t.Fatalf("SW1 = %02X, want 67 for a malformed APDU", sw1)
	}
	_ = sw2
}
