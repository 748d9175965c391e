package boot

import (
	"fmt"

	"github.com/bft-labs/bankswap/pkg/nor"
)

func (l *Loader) swap() error {
	n := l.pages
	for p := 0; p < n; p++ {
		idx := 2 * p
		page := n - 1 - p
		if err := l.copyPage(idx, PhaseSwap, l.active, page, l.dfu, page+1); err != nil {
			return err
		}
		if err := l.copyPage(idx+1, PhaseSwap, l.dfu, page, l.active, page); err != nil {
			return err
		}
	}
	return nil
}

func (l *Loader) revert() error {
	n := l.pages
	for p := 0; p < n; p++ {
		idx := 2*n + 2*p
		if err := l.copyPage(idx, PhaseRevert, l.active, p, l.dfu, p); err != nil {
			return err
		}
		if err := l.copyPage(idx+1, PhaseRevert, l.dfu, p+1, l.active, p); err != nil {
			return err
		}
	}
	return nil
}

// copyPage copies page fromPage of from into page toPage of to, unless the
// log already records step idx, and then records it.
func (l *Loader) copyPage(idx int, phase Phase, from nor.Flash, fromPage int, to nor.Flash, toPage int) error {
	if l.progress > idx {
		return nil
	}
	ps := uint32(l.pageSize)
	src := uint32(fromPage) * ps
	dst := uint32(toPage) * ps
	if err := to.Erase(dst, dst+ps); err != nil {
		return fmt.Errorf("step %d: erase 0x%x: %w", idx, dst, err)
	}
	for off := uint32(0); off < ps; off += uint32(len(l.buf)) {
		if err := from.Read(src+off, l.buf); err != nil {
			return fmt.Errorf("step %d: read 0x%x: %w", idx, src+off, err)
		}
		if err := to.Write(dst+off, l.buf); err != nil {
			return fmt.Errorf("step %d: write 0x%x: %w", idx, dst+off, err)
		}
	}
	if err := l.store.Advance(idx); err != nil {
		return fmt.Errorf("step %d: %w", idx, err)
	}
	l.progress = idx + 1
	if l.opts.progress != nil {
		l.opts.progress(Progress{
			Phase: phase,
			Step:  idx,
			Total: l.store.Layout().Steps(l.pages),
			Page:  toPage,
		})
	}
	return nil
}
