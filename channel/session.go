package channel

// SecureSession holds the live key material for one authenticated
// channel. It is zeroed on creation, populated once by mutual
// authentication, mutated on every secure exchange as the IV rolls,
// and zeroized on disconnect. Exclusively owned by the Engine for the
// channel's lifetime — it is not safe to share a SecureSession across
// concurrent command issuers.
type SecureSession struct {
	kEnc [32]byte
	kMac [32]byte
	iv   [16]byte
	open bool
}

// NewSecureSession returns a zeroed, closed session.
func NewSecureSession() *SecureSession {
	return &SecureSession{}
}

// Install sets the session keys and initial rolling IV and marks the
// session open. kEnc and kMac must be 32 bytes, iv must be 16 bytes.
func (s *SecureSession) Install(kEnc, kMac, iv []byte) {
	copy(s.kEnc[:], kEnc)
	copy(s.kMac[:], kMac)
	copy(s.iv[:], iv)
	s.open = true
}

// RollIV replaces the rolling IV with the first 16 bytes of newIV. It
// does not itself validate length; callers pass exactly 16 bytes (the
// response MAC).
func (s *SecureSession) RollIV(newIV []byte) {
	copy(s.iv[:], newIV)
}

// Clear zeroizes all key material and marks the session closed. Safe
// to call on an already-closed session.
func (s *SecureSession) Clear() {
	Zeroize(s.kEnc[:])
	Zeroize(s.kMac[:])
	Zeroize(s.iv[:])
	s.open = false
}

// IsOpen reports whether the session currently holds live key
// material.
func (s *SecureSession) IsOpen() bool { return s.open }

// KEnc returns the current encryption key. Callers must not retain or
// log the returned slice past the current operation.
func (s *SecureSession) KEnc() []byte { return s.kEnc[:] }

// KMac returns the current MAC key. Callers must not retain or log the
// returned slice past the current operation.
func (s *SecureSession) KMac() []byte { return s.kMac[:] }

// IV returns the current rolling IV.
func (s *SecureSession) IV() []byte { return s.iv[:] }
