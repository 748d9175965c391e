package updater

import (
	"crypto/ed25519"
	"errors"
	"hash"

	"github.com/bft-labs/bankswap/pkg/nor"
	"github.com/bft-labs/bankswap/pkg/state"
)

// BlockingUpdater stages images on blocking flash.
type BlockingUpdater struct {
	dfu   nor.Flash
	state nor.Flash
	e     engine
}

// NewBlocking returns an updater over cfg's partitions.
func NewBlocking(cfg Config, opts ...Option) (*BlockingUpdater, error) {
	if cfg.DFU == nil || cfg.State == nil {
		return nil, errors.New("updater: DFU and State partitions are required")
	}
	if _, err := state.NewStore(cfg.State); err != nil {
		return nil, err
	}
	return &BlockingUpdater{dfu: cfg.DFU, state: cfg.State, e: newEngine(opts)}, nil
}

// GetState returns the intent recorded in STATE.
func (u *BlockingUpdater) GetState() (state.State, error) {
	return u.e.getState(u.state)
}

// WriteFirmware writes data at offset in DFU. Each DFU sector is erased
// the first time a write touches it, so chunks must arrive in increasing
// offset order.
func (u *BlockingUpdater) WriteFirmware(offset int, data []byte) error {
	return u.e.writeFirmware(u.dfu, u.state, offset, data)
}

// PrepareUpdate erases the whole DFU partition and returns it for callers
// that stream the image themselves.
func (u *BlockingUpdater) PrepareUpdate() (nor.Flash, error) {
	if err := u.e.prepareUpdate(u.dfu, u.state); err != nil {
		return nil, err
	}
	return u.dfu, nil
}

// ReadDFU reads back staged image bytes.
func (u *BlockingUpdater) ReadDFU(offset int, buf []byte) error {
	return u.e.readDFU(u.dfu, offset, buf)
}

// Hash feeds the first updateLen bytes of DFU into h, reading chunk bytes at
// a time.
func (u *BlockingUpdater) Hash(h hash.Hash, updateLen int, chunk []byte) error {
	return u.e.hash(u.dfu, h, updateLen, chunk)
}

// MarkUpdated records the SHA-256 of the first updateLen bytes of DFU and
// requests a swap on the next boot.
func (u *BlockingUpdater) MarkUpdated(updateLen int) error {
	return u.e.markUpdated(u.dfu, u.state, updateLen)
}

// VerifyAndMarkUpdated checks sig, an ed25519 signature over the SHA-512
// digest of the image, before calling MarkUpdated.
func (u *BlockingUpdater) VerifyAndMarkUpdated(pub ed25519.PublicKey, sig []byte, updateLen int) error {
	return u.e.verifyAndMarkUpdated(u.dfu, u.state, pub, sig, updateLen)
}

// MarkBooted confirms the running image.
func (u *BlockingUpdater) MarkBooted() error {
	return u.e.markBooted(u.state)
}

// MarkDFU asks the bootloader to stay in DFU mode on the next boot.
func (u *BlockingUpdater) MarkDFU() error {
	return u.e.markDFU(u.state)
}
