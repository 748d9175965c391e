package updater

import (
	"crypto/ed25519"
	"crypto/sha256"
	"crypto/sha512"
	"fmt"
	"hash"

	"github.com/bft-labs/bankswap/pkg/log"
	"github.com/bft-labs/bankswap/pkg/nor"
	"github.com/bft-labs/bankswap/pkg/state"
)

// engine holds the logic shared by both updater variants. Flash handles
// are passed per call so the async variant can bind its context.
type engine struct {
	opts       options
	lastErased int
}

func newEngine(opts []Option) engine {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}
	return engine{opts: o, lastErased: -1}
}

func (e *engine) getState(st nor.Flash) (state.State, error) {
	s, err := state.NewStore(st)
	if err != nil {
		return state.Boot, err
	}
	return s.Get()
}

// verifyBooted fails unless the running image is confirmed.
func (e *engine) verifyBooted(st nor.Flash) error {
	cur, err := e.getState(st)
	if err != nil {
		return err
	}
	if cur == state.Swap {
		return ErrBadState
	}
	return nil
}

func (e *engine) writeFirmware(dfu, st nor.Flash, offset int, data []byte) error {
	ws := dfu.WriteSize()
	if offset < 0 || offset%ws != 0 || len(data)%ws != 0 {
		return fmt.Errorf("%w: offset %d, length %d, write size %d", ErrNotAligned, offset, len(data), ws)
	}
	if offset+len(data) > dfu.Capacity() {
		return fmt.Errorf("%w: %d bytes at offset %d, capacity %d", ErrImageTooLarge, len(data), offset, dfu.Capacity())
	}
	if err := e.verifyBooted(st); err != nil {
		return err
	}

	es := dfu.EraseSize()
	for len(data) > 0 {
		sector := offset / es
		if sector != e.lastErased {
			from := uint32(sector * es)
			if err := dfu.Erase(from, from+uint32(es)); err != nil {
				return fmt.Errorf("erase dfu sector %d: %w", sector, err)
			}
			e.lastErased = sector
		}
		n := (sector+1)*es - offset
		if n > len(data) {
			n = len(data)
		}
		if err := dfu.Write(uint32(offset), data[:n]); err != nil {
			return fmt.Errorf("write dfu at 0x%x: %w", offset, err)
		}
		offset += n
		data = data[n:]
	}
	return nil
}

func (e *engine) prepareUpdate(dfu, st nor.Flash) error {
	if err := e.verifyBooted(st); err != nil {
		return err
	}
	if err := dfu.Erase(0, uint32(dfu.Capacity())); err != nil {
		return fmt.Errorf("erase dfu: %w", err)
	}
	e.lastErased = -1
	e.opts.logger.Debug("dfu erased", log.Int("capacity", dfu.Capacity()))
	return nil
}

func (e *engine) readDFU(dfu nor.Flash, offset int, buf []byte) error {
	if offset < 0 {
		return fmt.Errorf("%w: negative offset %d", ErrNotAligned, offset)
	}
	if err := dfu.Read(uint32(offset), buf); err != nil {
		return fmt.Errorf("read dfu at 0x%x: %w", offset, err)
	}
	return nil
}

func (e *engine) hash(dfu nor.Flash, h hash.Hash, updateLen int, chunk []byte) error {
	rs := dfu.ReadSize()
	if len(chunk) == 0 || len(chunk)%rs != 0 {
		return fmt.Errorf("%w: chunk of %d bytes, read size %d", ErrNotAligned, len(chunk), rs)
	}
	if updateLen < 0 || updateLen > dfu.Capacity() {
		return fmt.Errorf("%w: %d bytes, capacity %d", ErrImageTooLarge, updateLen, dfu.Capacity())
	}
	for off := 0; off < updateLen; {
		n := updateLen - off
		if n > len(chunk) {
			n = len(chunk)
		}
		buf := chunk[:nor.RoundUp(n, rs)]
		if err := dfu.Read(uint32(off), buf); err != nil {
			return fmt.Errorf("read dfu at 0x%x: %w", off, err)
		}
		h.Write(buf[:n])
		off += n
	}
	return nil
}

func (e *engine) chunk(dfu nor.Flash) []byte {
	return make([]byte, nor.RoundUp(e.opts.chunkSize, dfu.ReadSize()))
}

func (e *engine) markUpdated(dfu, st nor.Flash, updateLen int) error {
	if updateLen <= 0 || updateLen > dfu.Capacity() {
		return fmt.Errorf("%w: %d bytes, capacity %d", ErrImageTooLarge, updateLen, dfu.Capacity())
	}
	if err := e.verifyBooted(st); err != nil {
		return err
	}
	h := sha256.New()
	if err := e.hash(dfu, h, updateLen, e.chunk(dfu)); err != nil {
		return err
	}
	d := &state.Digest{Length: uint32(updateLen)}
	copy(d.Sum[:], h.Sum(nil))

	s, err := state.NewStore(st)
	if err != nil {
		return err
	}
	if err := s.Set(state.Swap, d); err != nil {
		return fmt.Errorf("mark updated: %w", err)
	}
	e.opts.logger.Info("update marked",
		log.Int("length", updateLen),
		log.String("sha256", fmt.Sprintf("%x", d.Sum)),
	)
	return nil
}

func (e *engine) verifyAndMarkUpdated(dfu, st nor.Flash, pub ed25519.PublicKey, sig []byte, updateLen int) error {
	if err := e.verifyBooted(st); err != nil {
		return err
	}
	if len(pub) != ed25519.PublicKeySize || len(sig) != ed25519.SignatureSize {
		return fmt.Errorf("%w: malformed key or signature", ErrSignature)
	}
	if updateLen <= 0 || updateLen > dfu.Capacity() {
		return fmt.Errorf("%w: %d bytes, capacity %d", ErrImageTooLarge, updateLen, dfu.Capacity())
	}
	h := sha512.New()
	if err := e.hash(dfu, h, updateLen, e.chunk(dfu)); err != nil {
		return err
	}
	if !ed25519.Verify(pub, h.Sum(nil), sig) {
		e.opts.logger.Warn("image signature rejected", log.Int("length", updateLen))
		return ErrSignature
	}
	return e.markUpdated(dfu, st, updateLen)
}

func (e *engine) markBooted(st nor.Flash) error {
	return e.setState(st, state.Boot)
}

func (e *engine) markDFU(st nor.Flash) error {
	if err := e.verifyBooted(st); err != nil {
		return err
	}
	return e.setState(st, state.DfuDetach)
}

func (e *engine) setState(st nor.Flash, to state.State) error {
	s, err := state.NewStore(st)
	if err != nil {
		return err
	}
	if err := s.Set(to, nil); err != nil {
		return fmt.Errorf("set state %s: %w", to, err)
	}
	e.opts.logger.Info("state recorded", log.Stringer("state", to))
	return nil
}
