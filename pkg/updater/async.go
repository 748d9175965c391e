package updater

import (
	"context"
	"crypto/ed25519"
	"errors"
	"hash"

	"github.com/bft-labs/bankswap/pkg/nor"
	"github.com/bft-labs/bankswap/pkg/state"
)

// Updater is the context-aware updater. Its methods mirror
// BlockingUpdater.
type Updater struct {
	dfu   nor.AsyncFlash
	state nor.AsyncFlash
	e     engine
}

// New returns an Updater over cfg's partitions.
func New(cfg AsyncConfig, opts ...Option) (*Updater, error) {
	if cfg.DFU == nil || cfg.State == nil {
		return nil, errors.New("updater: DFU and State partitions are required")
	}
	if _, err := state.NewStore(nor.Bind(context.Background(), cfg.State)); err != nil {
		return nil, err
	}
	return &Updater{dfu: cfg.DFU, state: cfg.State, e: newEngine(opts)}, nil
}

func (u *Updater) bind(ctx context.Context) (dfu, st nor.Flash) {
	return nor.Bind(ctx, u.dfu), nor.Bind(ctx, u.state)
}

// GetState returns the intent recorded in STATE.
func (u *Updater) GetState(ctx context.Context) (state.State, error) {
	_, st := u.bind(ctx)
	return u.e.getState(st)
}

// WriteFirmware writes data at offset in DFU.
func (u *Updater) WriteFirmware(ctx context.Context, offset int, data []byte) error {
	dfu, st := u.bind(ctx)
	return u.e.writeFirmware(dfu, st, offset, data)
}

// PrepareUpdate erases the whole DFU partition and returns it.
func (u *Updater) PrepareUpdate(ctx context.Context) (nor.AsyncFlash, error) {
	dfu, st := u.bind(ctx)
	if err := u.e.prepareUpdate(dfu, st); err != nil {
		return nil, err
	}
	return u.dfu, nil
}

// ReadDFU reads back staged image bytes.
func (u *Updater) ReadDFU(ctx context.Context, offset int, buf []byte) error {
	dfu, _ := u.bind(ctx)
	return u.e.readDFU(dfu, offset, buf)
}

// Hash feeds the first updateLen bytes of DFU into h.
func (u *Updater) Hash(ctx context.Context, h hash.Hash, updateLen int, chunk []byte) error {
	dfu, _ := u.bind(ctx)
	return u.e.hash(dfu, h, updateLen, chunk)
}

// MarkUpdated records the image digest and requests a swap.
func (u *Updater) MarkUpdated(ctx context.Context, updateLen int) error {
	dfu, st := u.bind(ctx)
	return u.e.markUpdated(dfu, st, updateLen)
}

// VerifyAndMarkUpdated checks the image signature, then marks it updated.
func (u *Updater) VerifyAndMarkUpdated(ctx context.Context, pub ed25519.PublicKey, sig []byte, updateLen int) error {
	dfu, st := u.bind(ctx)
	return u.e.verifyAndMarkUpdated(dfu, st, pub, sig, updateLen)
}

// MarkBooted confirms the running image.
func (u *Updater) MarkBooted(ctx context.Context) error {
	_, st := u.bind(ctx)
	return u.e.markBooted(st)
}

// MarkDFU asks the bootloader to stay in DFU mode on the next boot.
func (u *Updater) MarkDFU(ctx context.Context) error {
	_, st := u.bind(ctx)
	return u.e.markDFU(st)
}
