package channel_test

import (
	"bytes"
	"crypto/rand"
	"errors"
	"testing"

	"cryptnox/channel"
	"cryptnox/transport"
)

func newEngine(t *testing.T) (*channel.Engine, *transport.MockCard) {
	t.Helper()
	card := transport.NewMockCard(rand.Reader, nil)
	eng := channel.NewEngine(card, channel.Options{RandReader: rand.Reader})
	return eng, card
}

func TestEngineConnectReachesAuthenticated(t *testing.T) {
	eng, _ := newEngine(t)
	if err := eng.Connect(); err != nil {
		t.Fatalf("connect: %v", err)
	}
	if eng.State() != channel.StateAuthenticated {
		t.Fatalf("state = %v, want Authenticated", eng.State())
	}
	if !eng.IsOpen() {
		t.Fatal("session should be open")
	}
}

func TestEngineConnectFailsWithoutCard(t *testing.T) {
	card := transport.NewMockCard(rand.Reader, nil)
	card.Present = false
	eng := channel.NewEngine(card, channel.Options{RandReader: rand.Reader})
	if err := eng.Connect(); err == nil {
		t.Fatal("expected error connecting with no card present")
	}
	if eng.IsOpen() {
		t.Fatal("session should not be open")
	}
}

func TestEngineVerifyCorrectPIN(t *testing.T) {
	eng, _ := newEngine(t)
	if err := eng.Connect(); err != nil {
		t.Fatalf("connect: %v", err)
	}
	data, sw1, sw2, err := eng.VerifyPIN("1234")
	if err != nil {
		t.Fatalf("verify pin: %v", err)
	}
	if sw1 != 0x90 || sw2 != 0x00 {
		t.Fatalf("SW = %02X%02X, want 9000", sw1, sw2)
	}
	if len(data) == 0 {
		t.Fatal("expected non-empty VERIFY PIN response")
	}
}

func TestEngineVerifyWrongPINKeepsSessionOpen(t *testing.T) {
	eng, _ := newEngine(t)
	if err := eng.Connect(); err != nil {
		t.Fatalf("connect: %v", err)
	}
	_, sw1, _, err := eng.VerifyPIN("0000")
	if err == nil {
		t.Fatal("expected application-status error for wrong PIN")
	}
	if sw1 != 0x63 {
		t.Fatalf("SW1 = %02X, want 63", sw1)
	}
	if !eng.IsOpen() {
		t.Fatal("session should remain open after a wrong PIN")
	}

	// Confirm the channel is still usable.
	if _, _, _, err := eng.GetCardInfo(); err != nil {
		t.Fatalf("get card info after wrong pin: %v", err)
	}
}

func TestEnginePINTooLongRejectedLocally(t *testing.T) {
	eng, _ := newEngine(t)
	if err := eng.Connect(); err != nil {
		t.Fatalf("connect: %v", err)
	}
	if _, _, _, err := eng.VerifyPIN("123456789"); err == nil {
		t.Fatal("expected local length rejection for 9-byte PIN")
	}
	if !eng.IsOpen() {
		t.Fatal("a locally-rejected PIN must not tear down the session")
	}
}

func TestEngineGetCardInfo(t *testing.T) {
	eng, _ := newEngine(t)
	if err := eng.Connect(); err != nil {
		t.Fatalf("connect: %v", err)
	}
	data, sw1, sw2, err := eng.GetCardInfo()
	if err != nil {
		t.Fatalf("get card info: %v", err)
	}
	if sw1 != 0x90 || sw2 != 0x00 {
		t.Fatalf("SW = %02X%02X, want 9000", sw1, sw2)
	}
	if !bytes.Contains(data, []byte("cryptnox")) {
		t.Fatalf("unexpected card info payload %q", data)
	}
}

func TestEngineRollingIVAcrossMultipleCommands(t *testing.T) {
	eng, _ := newEngine(t)
	if err := eng.Connect(); err != nil {
		t.Fatalf("connect: %v", err)
	}
	for i := 0; i < 5; i++ {
		if _, _, _, err := eng.GetCardInfo(); err != nil {
			t.Fatalf("command %d: %v", i, err)
		}
	}
}

func TestEngineSendSecureCommandRequiresOpenSession(t *testing.T) {
	eng, _ := newEngine(t)
	if _, _, _, err := eng.GetCardInfo(); err == nil {
		t.Fatal("expected session-closed error before Connect")
	}
}

func TestEngineMACMismatchClearsSession(t *testing.T) {
	eng, card := newEngine(t)
	if err := eng.Connect(); err != nil {
		t.Fatalf("connect: %v", err)
	}
	card.CorruptNextResponse = true
	if _, _, _, err := eng.GetCardInfo(); err == nil {
		t.Fatal("expected MAC mismatch error")
	}
	if eng.IsOpen() {
		t.Fatal("session should be closed after a MAC mismatch")
	}
	if eng.State() != channel.StateIdle {
		t.Fatalf("state = %v, want Idle after fatal error", eng.State())
	}
}

func TestEngineRejectsInvalidCertificateMarker(t *testing.T) {
	eng, card := newEngine(t)
	card.CorruptCertificateMarker = true
	err := eng.Connect()
	if err == nil {
		t.Fatal("expected invalid-certificate error")
	}
	var chErr *channel.Err
	if !errors.As(err, &chErr) || chErr.Kind != channel.KindInvalidCertificate {
		t.Fatalf("expected KindInvalidCertificate, got %v", err)
	}
	if eng.IsOpen() {
		t.Fatal("session should not be open after an invalid certificate marker")
	}
}

func TestEngineDisconnectIsIdempotent(t *testing.T) {
	eng, _ := newEngine(t)
	if err := eng.Connect(); err != nil {
		t.Fatalf("connect: %v", err)
	}
	eng.Disconnect()
	eng.Disconnect()
	if eng.IsOpen() || eng.State() != channel.StateIdle {
		t.Fatal("repeated Disconnect should remain a no-op closed state")
	}
}

func TestEngineStrictCertificateShapeAccepted(t *testing.T) {
	card := transport.NewMockCard(rand.Reader, nil)
	eng := channel.NewEngine(card, channel.Options{
		RandReader:             rand.Reader,
		StrictCertificateShape: true,
	})
	if err := eng.Connect(); err != nil {
		t.Fatalf("connect with strict certificate shape checking: %v", err)
	}
}

type recordingSink struct{ lines int }

func (s *recordingSink) Printf(format string, args ...any) { s.lines++ }
func (s *recordingSink) PrintHex(label string, data []byte) { s.lines++ }

func TestEngineSinkReceivesTraffic(t *testing.T) {
	card := transport.NewMockCard(rand.Reader, nil)
	sink := &recordingSink{}
	eng := channel.NewEngine(card, channel.Options{RandReader: rand.Reader, Sink: sink})
	if err := eng.Connect(); err != nil {
		t.Fatalf("connect: %v", err)
	}
	if sink.lines == 0 {
		t.Fatal("expected the sink to observe APDU traffic during the handshake")
	}
}
