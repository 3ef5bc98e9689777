package gfx

import (
	"image/color"

	"github.com/gorcp/rcq/texture"
)

const maxAttachStack = 4

type target struct {
	color *texture.Texture
	depth *texture.Texture
}

type attachState struct {
	stack [maxAttachStack]target
	sp    int
}

func (a *attachState) current() *texture.Texture {
	if a.sp == 0 {
		return nil
	}
	return a.stack[a.sp-1].color
}

// Presenter receives a surface whose rendering has finished, typically
// to display it. See DetachShow.
type Presenter interface {
	Show(t *texture.Texture)
}

// Attach pushes a render target: subsequent draw commands render into
// col, depth-tested against depth if non-nil. The previous target, if
// any, is restored by Detach. Rendering a texture for use by the
// enclosing target is the intended use of the stack.
func (r *Renderer) Attach(col, depth *texture.Texture) {
	a := &r.targets
	if a.sp >= maxAttachStack {
		panic("gfx: attachment stack overflow")
	}
	a.stack[a.sp] = target{col, depth}
	a.sp++
	r.applyTarget()
}

// AttachClear is Attach followed by clearing the color buffer to c and
// the depth buffer, if any, to the maximum depth.
func (r *Renderer) AttachClear(col, depth *texture.Texture, c color.Color) {
	r.Attach(col, depth)
	r.PushMode()

	if depth != nil {
		r.setColorImage(depth)
		r.mode.change(r, CycleTypeMask, CycleTypeFill)
		r.autosyncChange(syncPipe)
		r.append(0xf7_000000, 0xfffc_fffc)
		r.lastFill = nil
		r.FillRectangle(depth.Bounds())
		r.autosyncUse(syncPipe)
		r.setColorImage(col)
	}

	r.SetModeFill(c)
	r.FillRectangle(col.Bounds())
	r.PopMode()
}

// Attached returns the current render target, nil if none is attached.
func (r *Renderer) Attached() *texture.Texture {
	return r.targets.current()
}

// Detach pops the current render target after draining all rendering to
// it, and restores the previous one. The queue is flushed, so detaching
// is also the natural point making a finished frame visible to the
// consumer.
func (r *Renderer) Detach() {
	a := &r.targets
	if a.sp == 0 {
		panic("gfx: detach without attached target")
	}
	r.SyncFull()
	a.sp--
	if a.sp > 0 {
		r.applyTarget()
	}
	r.q.Flush()
}

// DetachWait is Detach, blocking until the detached target's rendering
// has fully reached memory.
func (r *Renderer) DetachWait() {
	r.Detach()
	r.q.Wait()
}

// DetachCb is Detach, invoking fn once the detached target's rendering
// has fully reached memory. The callback restrictions of
// cmdq.CallDeferred apply.
func (r *Renderer) DetachCb(fn func()) {
	r.Detach()
	r.q.CallDeferred(fn)
}

// DetachShow is Detach, handing the finished surface to p once its
// rendering has fully reached memory.
func (r *Renderer) DetachShow(p Presenter) {
	t := r.targets.current()
	r.DetachCb(func() { p.Show(t) })
}

func (r *Renderer) applyTarget() {
	tgt := &r.targets.stack[r.targets.sp-1]
	r.setColorImage(tgt.color)
	if tgt.depth != nil {
		r.autosyncChange(syncPipe)
		r.append(0xfe_000000, r.surfaceAddr(tgt.depth))
	}
	if r.cfg&AutoScissor != 0 {
		r.SetScissor(tgt.color.Bounds(), InterlaceNone)
	}
	r.lastFill = nil
}

func (r *Renderer) setColorImage(t *texture.Texture) {
	r.autosyncChange(syncPipe)
	uw := 0xff_000000 | formatBits(t.Format()) | uint32(t.Bounds().Dx()-1)
	r.append(uw, r.surfaceAddr(t))
}
