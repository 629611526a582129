// Package testing provides a runnable property/scenario suite for the
// secure channel engine, driven against transport.MockCard so it
// requires no hardware.
package testing

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"time"

	"cryptnox/channel"
	"cryptnox/transport"
)

// Result is the outcome of one property or scenario check.
type Result struct {
	Name     string
	Category string // "property" or "scenario"
	Passed   bool
	Detail   string
	Error    string
	Duration time.Duration
}

// Summary aggregates a Suite's Results.
type Summary struct {
	Total       int
	Passed      int
	Failed      int
	PassRate    float64
	ByCategory  map[string]int
	FailedTests []string
}

// Suite drives a battery of protocol-behavior checks and end-to-end
// session scenarios against fresh Engine/MockCard pairs.
type Suite struct {
	Results []Result
	rng     io.Reader
}

// NewSuite returns a Suite seeded by rng. Pass a deterministic reader
// for reproducible runs; nil defaults to crypto/rand.
func NewSuite(rng io.Reader) *Suite {
	return &Suite{rng: rng}
}

func (s *Suite) run(category, name string, fn func() error) {
	start := time.Now()
	err := fn()
	r := Result{Name: name, Category: category, Duration: time.Since(start)}
	if err != nil {
		r.Passed = false
		r.Error = err.Error()
	} else {
		r.Passed = true
		r.Detail = "ok"
	}
	s.Results = append(s.Results, r)
}

func (s *Suite) newEngine() (*channel.Engine, *transport.MockCard) {
	card := transport.NewMockCard(s.rng, nil)
	eng := channel.NewEngine(card, channel.Options{RandReader: s.rng})
	return eng, card
}

// RunAll runs every property and scenario check.
func (s *Suite) RunAll() {
	s.RunProperties()
	s.RunScenarios()
}

// RunProperties checks invariants that must hold regardless of which
// commands a caller happens to run.
func (s *Suite) RunProperties() {
	s.run("property", "new_engine_has_no_open_session", s.checkNewEngineClosed)
	s.run("property", "connect_reaches_authenticated_open_session", s.checkConnectOpensSession)
	s.run("property", "rolling_iv_survives_consecutive_commands", s.checkRollingIVAdvances)
	s.run("property", "mac_mismatch_is_fatal", s.checkMACMismatchIsFatal)
	s.run("property", "application_status_keeps_session_open", s.checkAppStatusKeepsSessionOpen)
	s.run("property", "secure_command_requires_open_session", s.checkSecureCommandRequiresOpenSession)
	s.run("property", "disconnect_is_idempotent", s.checkDisconnectIdempotent)
	s.run("property", "pin_over_eight_bytes_rejected_locally", s.checkOversizedPINRejectedLocally)
}

// RunScenarios replays complete, user-visible sessions end to end.
func (s *Suite) RunScenarios() {
	s.run("scenario", "full_handshake_then_disconnect", s.scenarioHandshakeThenDisconnect)
	s.run("scenario", "verify_correct_pin", s.scenarioVerifyCorrectPIN)
	s.run("scenario", "verify_wrong_pin_keeps_session_open", s.scenarioVerifyWrongPIN)
	s.run("scenario", "get_card_info_after_pin", s.scenarioGetCardInfoAfterPIN)
	s.run("scenario", "no_card_present_fails_connect", s.scenarioNoCardPresent)
	s.run("scenario", "corrupted_response_clears_session", s.scenarioCorruptedResponse)
	s.run("scenario", "invalid_certificate_marker_rejected", s.scenarioInvalidCertificateMarker)
}

// checkNewEngineClosed verifies a freshly constructed engine has no
// open session.
func (s *Suite) checkNewEngineClosed() error {
	eng, _ := s.newEngine()
	if eng.IsOpen() {
		return fmt.Errorf("new engine reports session open")
	}
	if eng.State() != channel.StateIdle {
		return fmt.Errorf("new engine state = %v, want Idle", eng.State())
	}
	return nil
}

// checkConnectOpensSession verifies Connect against a present card
// reaches Authenticated with an open session.
func (s *Suite) checkConnectOpensSession() error {
	eng, _ := s.newEngine()
	if err := eng.Connect(); err != nil {
		return err
	}
	if !eng.IsOpen() || eng.State() != channel.StateAuthenticated {
		return fmt.Errorf("state=%v open=%v after Connect, want Authenticated/open", eng.State(), eng.IsOpen())
	}
	return nil
}

// checkRollingIVAdvances verifies two consecutive secure commands
// succeed, proving the rolling IV discipline is consistent between
// host and card.
func (s *Suite) checkRollingIVAdvances() error {
	eng, _ := s.newEngine()
	if err := eng.Connect(); err != nil {
		return err
	}
	if _, _, _, err := eng.GetCardInfo(); err != nil {
		return fmt.Errorf("first command: %w", err)
	}
	if _, _, _, err := eng.GetCardInfo(); err != nil {
		return fmt.Errorf("second command (rolling IV desync?): %w", err)
	}
	return nil
}

// checkMACMismatchIsFatal verifies a corrupted response MAC is fatal
// and clears the session.
func (s *Suite) checkMACMismatchIsFatal() error {
	eng, card := s.newEngine()
	if err := eng.Connect(); err != nil {
		return err
	}
	card.CorruptNextResponse = true
	_, _, _, err := eng.GetCardInfo()
	if err == nil {
		return fmt.Errorf("expected MAC mismatch error, got nil")
	}
	if eng.IsOpen() {
		return fmt.Errorf("session still open after MAC mismatch")
	}
	return nil
}

// checkAppStatusKeepsSessionOpen verifies a non-9000 application
// status does not close the session.
func (s *Suite) checkAppStatusKeepsSessionOpen() error {
	eng, card := s.newEngine()
	if err := eng.Connect(); err != nil {
		return err
	}
	card.ForceStatusWord = [2]byte{0x6A, 0x88}
	_, sw1, sw2, err := eng.GetCardInfo()
	if err == nil {
		return fmt.Errorf("expected AppStatus error, got nil")
	}
	if sw1 != 0x6A || sw2 != 0x88 {
		return fmt.Errorf("unexpected SW %02X%02X", sw1, sw2)
	}
	if !eng.IsOpen() {
		return fmt.Errorf("session closed after application status failure")
	}
	return nil
}

// checkSecureCommandRequiresOpenSession verifies SendSecureCommand on
// a closed session is rejected immediately.
func (s *Suite) checkSecureCommandRequiresOpenSession() error {
	eng, _ := s.newEngine()
	_, _, _, err := eng.GetCardInfo()
	if err == nil {
		return fmt.Errorf("expected session-closed error, got nil")
	}
	return nil
}

// checkDisconnectIdempotent verifies Disconnect is safe to call twice.
func (s *Suite) checkDisconnectIdempotent() error {
	eng, _ := s.newEngine()
	if err := eng.Connect(); err != nil {
		return err
	}
	eng.Disconnect()
	eng.Disconnect()
	if eng.IsOpen() || eng.State() != channel.StateIdle {
		return fmt.Errorf("state not Idle/closed after double Disconnect")
	}
	return nil
}

// checkOversizedPINRejectedLocally verifies a PIN longer than 8 bytes
// is rejected before any APDU is sent.
func (s *Suite) checkOversizedPINRejectedLocally() error {
	eng, _ := s.newEngine()
	if err := eng.Connect(); err != nil {
		return err
	}
	_, _, _, err := eng.VerifyPIN("123456789")
	if err == nil {
		return fmt.Errorf("expected length error for 9-byte PIN, got nil")
	}
	if !eng.IsOpen() {
		return fmt.Errorf("session closed by a rejected-before-transmit PIN")
	}
	return nil
}

// scenarioHandshakeThenDisconnect runs a full handshake then a clean
// disconnect.
func (s *Suite) scenarioHandshakeThenDisconnect() error {
	eng, _ := s.newEngine()
	if err := eng.Connect(); err != nil {
		return err
	}
	eng.Disconnect()
	if eng.IsOpen() {
		return fmt.Errorf("session still open after Disconnect")
	}
	return nil
}

// scenarioVerifyCorrectPIN verifies the correct PIN succeeds.
func (s *Suite) scenarioVerifyCorrectPIN() error {
	eng, _ := s.newEngine()
	if err := eng.Connect(); err != nil {
		return err
	}
	data, sw1, sw2, err := eng.VerifyPIN("1234")
	if err != nil {
		return err
	}
	if sw1 != 0x90 || sw2 != 0x00 {
		return fmt.Errorf("unexpected SW %02X%02X", sw1, sw2)
	}
	if len(data) != 1 {
		return fmt.Errorf("unexpected VERIFY PIN response %x", data)
	}
	return nil
}

// scenarioVerifyWrongPIN verifies a wrong PIN returns a recoverable
// application status and leaves the session open so the caller can
// retry.
func (s *Suite) scenarioVerifyWrongPIN() error {
	eng, _ := s.newEngine()
	if err := eng.Connect(); err != nil {
		return err
	}
	_, sw1, sw2, err := eng.VerifyPIN("0000")
	if err == nil {
		return fmt.Errorf("expected wrong-PIN application status, got nil")
	}
	if sw1 != 0x63 {
		return fmt.Errorf("unexpected SW1 %02X, want 63", sw1)
	}
	_ = sw2
	if !eng.IsOpen() {
		return fmt.Errorf("session closed after wrong PIN")
	}
	return nil
}

// scenarioGetCardInfoAfterPIN verifies GET CARD INFO succeeds after a
// correct PIN verification.
func (s *Suite) scenarioGetCardInfoAfterPIN() error {
	eng, _ := s.newEngine()
	if err := eng.Connect(); err != nil {
		return err
	}
	if _, _, _, err := eng.VerifyPIN("1234"); err != nil {
		return err
	}
	data, _, _, err := eng.GetCardInfo()
	if err != nil {
		return err
	}
	if !bytes.Contains(data, []byte("cryptnox")) {
		return fmt.Errorf("unexpected card info %q", data)
	}
	return nil
}

// scenarioNoCardPresent verifies Connect against an absent card fails
// fatally without a session.
func (s *Suite) scenarioNoCardPresent() error {
	card := transport.NewMockCard(s.rng, nil)
	card.Present = false
	eng := channel.NewEngine(card, channel.Options{RandReader: s.rng})
	if err := eng.Connect(); err == nil {
		return fmt.Errorf("expected no-card error, got nil")
	}
	if eng.IsOpen() {
		return fmt.Errorf("session open after failed Connect")
	}
	return nil
}

// scenarioCorruptedResponse verifies a corrupted response during an
// ordinary command clears the session so the caller is forced to
// reconnect.
func (s *Suite) scenarioCorruptedResponse() error {
	eng, card := s.newEngine()
	if err := eng.Connect(); err != nil {
		return err
	}
	card.CorruptNextResponse = true
	if _, _, _, err := eng.VerifyPIN("1234"); err == nil {
		return fmt.Errorf("expected corrupted-response error, got nil")
	}
	if eng.IsOpen() {
		return fmt.Errorf("session still open after corrupted response")
	}
	if _, _, _, err := eng.GetCardInfo(); err == nil {
		return fmt.Errorf("expected session-closed error after corrupted response")
	}
	return nil
}

// scenarioInvalidCertificateMarker verifies that a certificate whose
// uncompressed-point marker byte is not 0x04 is rejected before any
// ECDH is attempted, leaving the session closed.
func (s *Suite) scenarioInvalidCertificateMarker() error {
	eng, card := s.newEngine()
	card.CorruptCertificateMarker = true
	err := eng.Connect()
	if err == nil {
		return fmt.Errorf("expected invalid-certificate error, got nil")
	}
	var chErr *channel.Err
	if !errors.As(err, &chErr) || chErr.Kind != channel.KindInvalidCertificate {
		return fmt.Errorf("expected KindInvalidCertificate, got %v", err)
	}
	if eng.IsOpen() {
		return fmt.Errorf("session open after an invalid certificate marker")
	}
	return nil
}

// GetSummary aggregates the Suite's Results.
func (s *Suite) GetSummary() Summary {
	sum := Summary{ByCategory: make(map[string]int)}
	for _, r := range s.Results {
		sum.Total++
		if r.Passed {
			sum.Passed++
		} else {
			sum.Failed++
			sum.FailedTests = append(sum.FailedTests, r.Name)
		}
		sum.ByCategory[r.Category]++
	}
	if sum.Total > 0 {
		sum.PassRate = float64(sum.Passed) / float64(sum.Total) * 100
	}
	return sum
}
