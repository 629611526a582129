package channel

import (
	"errors"
	"testing"
)

func TestErrFatalClassification(t *testing.T) {
	fatalCases := []error{
		errNoCard(),
		errTransport(errors.New("boom")),
		errUnexpectedSW(0x6A, 0x88),
		errUnexpectedLength(10, 5),
		errInvalidCertificate("bad shape"),
		errEcdh(errors.New("boom")),
		errRng(errors.New("boom")),
		errMacMismatch(),
		errSessionClosed(),
		errInvalidLength("too long"),
	}
	for _, err := range fatalCases {
		var chErr *Err
		if !errors.As(err, &chErr) {
			t.Fatalf("%v is not a *Err", err)
		}
		if !chErr.Fatal() {
			t.Fatalf("%v (%v) should be fatal", chErr.Kind, err)
		}
	}

	recoverable := errAppStatus(0x63, 0xC2, []byte{0x02})
	var chErr *Err
	if !errors.As(recoverable, &chErr) {
		t.Fatal("errAppStatus is not a *Err")
	}
	if chErr.Fatal() {
		t.Fatal("AppStatus should be recoverable, not fatal")
	}
}

func TestErrUnwrap(t *testing.T) {
	wrapped := errors.New("root cause")
	err := errTransport(wrapped)
	if errors.Unwrap(err) != wrapped {
		t.Fatal("Unwrap should return the wrapped error")
	}
}

func TestErrErrorStringsAreNonEmpty(t *testing.T) {
	cases := []error{
		errNoCard(),
		errUnexpectedSW(0x6A, 0x88),
		errUnexpectedLength(16, 8),
		errAppStatus(0x63, 0xC2, nil),
		errTransport(errors.New("link down")),
	}
	for _, err := range cases {
		if err.Error() == "" {
			t.Fatalf("empty error string for %#v", err)
		}
	}
}

func TestKindString(t *testing.T) {
	if KindNoCard.String() != "NoCard" {
		t.Fatalf("KindNoCard.String() = %q", KindNoCard.String())
	}
	if Kind(999).String() != "Unknown" {
		t.Fatalf("unknown kind should stringify to Unknown")
	}
}
