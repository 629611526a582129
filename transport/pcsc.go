// Package transport provides channel.Transport implementations: a
// PC/SC-backed adapter for real NFC readers and a deterministic mock for
// tests.
package transport

import (
	"fmt"

	"github.com/ebfe/scard"

	"cryptnox/channel"
)

// PCSC implements channel.Transport over a PC/SC reader carrying a
// contactless (NFC) target. It owns the reader context and card handle
// for its lifetime.
type PCSC struct {
	ctx  *scard.Context
	card *scard.Card
	name string
	atr  []byte
}

func wrapPCSCErr(action string, cause error) error {
	return &channel.Err{Kind: channel.KindTransportFailed, Wrapped: fmt.Errorf("%s: %w", action, cause)}
}

// ListReaders enumerates the PC/SC readers visible to the host's smart
// card service.
func ListReaders() ([]string, error) {
	ctx, err := scard.EstablishContext()
	if err != nil {
		return nil, wrapPCSCErr("establishing PC/SC context", err)
	}
	defer ctx.Release()

	readers, err := ctx.ListReaders()
	if err != nil {
		return nil, wrapPCSCErr("enumerating readers", err)
	}
	return readers, nil
}

// pickReader resolves index against the readers currently visible to
// ctx, releasing ctx itself if resolution fails.
func pickReader(ctx *scard.Context, index int) (string, error) {
	readers, err := ctx.ListReaders()
	if err != nil {
		ctx.Release()
		return "", wrapPCSCErr("enumerating readers", err)
	}
	if len(readers) == 0 {
		ctx.Release()
		return "", &channel.Err{Kind: channel.KindNoCard}
	}
	if index < 0 || index >= len(readers) {
		ctx.Release()
		return "", &channel.Err{Kind: channel.KindTransportFailed,
			Wrapped: fmt.Errorf("reader index %d out of range, have %d reader(s)", index, len(readers))}
	}
	return readers[index], nil
}

// OpenPCSC connects to the reader at readerIndex and wraps it as a
// channel.Transport. readerIndex is resolved against the live reader
// list at call time, so it tracks hot-plugged readers between calls to
// ListReaders and OpenPCSC.
func OpenPCSC(readerIndex int) (*PCSC, error) {
	ctx, err := scard.EstablishContext()
	if err != nil {
		return nil, wrapPCSCErr("establishing PC/SC context", err)
	}

	name, err := pickReader(ctx, readerIndex)
	if err != nil {
		return nil, err
	}

	card, err := ctx.Connect(name, scard.ShareShared, scard.ProtocolAny)
	if err != nil {
		ctx.Release()
		return nil, wrapPCSCErr(fmt.Sprintf("connecting to reader %q", name), err)
	}

	status, err := card.Status()
	if err != nil {
		card.Disconnect(scard.LeaveCard)
		ctx.Release()
		return nil, wrapPCSCErr("reading card status after connect", err)
	}

	return &PCSC{ctx: ctx, card: card, name: name, atr: status.Atr}, nil
}

// OpenFirstPCSC connects to the first available reader.
func OpenFirstPCSC() (*PCSC, error) {
	return OpenPCSC(0)
}

// IsCardPresent implements channel.Transport. PC/SC's Connect already
// requires a target in the field, so once open the card is considered
// present until the underlying status proves otherwise.
func (p *PCSC) IsCardPresent() bool {
	if p.card == nil {
		return false
	}
	_, err := p.card.Status()
	return err == nil
}

// SendAPDU implements channel.Transport, splitting the trailing SW1 SW2
// off the raw PC/SC response.
func (p *PCSC) SendAPDU(cmd []byte) ([]byte, byte, byte, error) {
	resp, err := p.card.Transmit(cmd)
	if err != nil {
		return nil, 0, 0, wrapPCSCErr("transmitting APDU", err)
	}
	if len(resp) < 2 {
		return nil, 0, 0, &channel.Err{Kind: channel.KindTransportFailed,
			Wrapped: fmt.Errorf("card returned %d bytes, too short to carry a status word", len(resp))}
	}
	n := len(resp)
	return resp[:n-2], resp[n-2], resp[n-1], nil
}

// Reset implements channel.Transport with a warm reconnect, refreshing
// the cached ATR on success.
func (p *PCSC) Reset() {
	if p.card == nil {
		return
	}
	if err := p.card.Reconnect(scard.ShareShared, scard.ProtocolAny, scard.ResetCard); err != nil {
		return
	}
	if status, err := p.card.Status(); err == nil {
		p.atr = status.Atr
	}
}

// Name returns the underlying reader name.
func (p *PCSC) Name() string { return p.name }

// ATRHex returns the cached Answer To Reset as a hex string.
func (p *PCSC) ATRHex() string { return fmt.Sprintf("%X", p.atr) }

// Close releases the card and PC/SC context. Safe to call once the
// channel has been disconnected.
func (p *PCSC) Close() error {
	if p.card != nil {
		p.card.Disconnect(scard.LeaveCard)
	}
	if p.ctx != nil {
		p.ctx.Release()
	}
	return nil
}
