package nor

import "context"

// AsyncFlash is the context-aware form of Flash. Each call is a point where
// the caller may be suspended or cancelled; an operation already issued to
// the device is never interrupted.
type AsyncFlash interface {
	ReadSize() int
	WriteSize() int
	EraseSize() int
	Capacity() int

	Read(ctx context.Context, offset uint32, buf []byte) error
	Write(ctx context.Context, offset uint32, data []byte) error
	Erase(ctx context.Context, from, to uint32) error
}

// Async adapts a blocking Flash. Each call fails with ctx.Err() when the
// context is already done and otherwise runs the blocking operation.
func Async(f Flash) AsyncFlash {
	return asyncFlash{f}
}

type asyncFlash struct{ f Flash }

func (a asyncFlash) ReadSize() int  { return a.f.ReadSize() }
func (a asyncFlash) WriteSize() int { return a.f.WriteSize() }
func (a asyncFlash) EraseSize() int { return a.f.EraseSize() }
func (a asyncFlash) Capacity() int  { return a.f.Capacity() }

func (a asyncFlash) Read(ctx context.Context, offset uint32, buf []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return a.f.Read(offset, buf)
}

func (a asyncFlash) Write(ctx context.Context, offset uint32, data []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return a.f.Write(offset, data)
}

func (a asyncFlash) Erase(ctx context.Context, from, to uint32) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return a.f.Erase(from, to)
}

// Bind fixes ctx for every call on af and returns it as a Flash. The result
// is only valid while ctx is.
func Bind(ctx context.Context, af AsyncFlash) Flash {
	if a, ok := af.(asyncFlash); ok && ctx.Done() == nil {
		return a.f
	}
	return boundFlash{AsyncFlash: af, ctx: ctx}
}

type boundFlash struct {
	AsyncFlash
	ctx context.Context
}

func (b boundFlash) Read(offset uint32, buf []byte) error {
	return b.AsyncFlash.Read(b.ctx, offset, buf)
}

func (b boundFlash) Write(offset uint32, data []byte) error {
	return b.AsyncFlash.Write(b.ctx, offset, data)
}

func (b boundFlash) Erase(from, to uint32) error {
	return b.AsyncFlash.Erase(b.ctx, from, to)
}
