package graphics

// Canvas receives drawing commands. Paint backends implement this to
// rasterize a display list; the recorder implements it to capture one.
type Canvas interface {
	Save()
	Restore()
	Translate(dx, dy float64)
	DrawRect(rect Rect, color Color)
	DrawText(text string, origin Offset, color Color)
}

// displayOp is a single recorded drawing operation.
type displayOp interface {
	execute(canvas Canvas)
}

type opSave struct{}

func (opSave) execute(c Canvas) { c.Save() }

type opRestore struct{}

func (opRestore) execute(c Canvas) { c.Restore() }

type opTranslate struct {
	dx, dy float64
}

func (o opTranslate) execute(c Canvas) { c.Translate(o.dx, o.dy) }

type opRect struct {
	rect  Rect
	color Color
}

func (o opRect) execute(c Canvas) { c.DrawRect(o.rect, o.color) }

type opText struct {
	text   string
	origin Offset
	color  Color
}

func (o opText) execute(c Canvas) { c.DrawText(o.text, o.origin, o.color) }

type opSublist struct {
	list *DisplayList
}

func (o opSublist) execute(c Canvas) {
	if o.list != nil {
		o.list.Replay(c)
	}
}

// DisplayList is an immutable list of drawing operations. It can be
// replayed onto any Canvas implementation.
type DisplayList struct {
	ops  []displayOp
	size Size
}

// Replay plays the recorded operations onto the provided canvas.
func (d *DisplayList) Replay(canvas Canvas) {
	for _, op := range d.ops {
		op.execute(canvas)
	}
}

// Size returns the size recorded when the display list was created.
func (d *DisplayList) Size() Size {
	return d.size
}

// OpCount returns the number of recorded operations, including the
// operations of embedded sublists.
func (d *DisplayList) OpCount() int {
	count := 0
	for _, op := range d.ops {
		if sub, ok := op.(opSublist); ok && sub.list != nil {
			count += sub.list.OpCount()
			continue
		}
		count++
	}
	return count
}

// Recorder records drawing commands into a display list.
type Recorder struct {
	ops       []displayOp
	recording bool
	size      Size
}

// Begin starts a new recording session sized to the node being painted.
func (r *Recorder) Begin(size Size) Canvas {
	r.ops = r.ops[:0]
	r.recording = true
	r.size = size
	return &recordingCanvas{recorder: r}
}

// End finishes the recording and returns the captured display list.
func (r *Recorder) End() *DisplayList {
	if !r.recording {
		return &DisplayList{size: r.size}
	}
	r.recording = false
	ops := make([]displayOp, len(r.ops))
	copy(ops, r.ops)
	return &DisplayList{ops: ops, size: r.size}
}

// AppendList embeds a previously recorded display list at the given offset.
// Clean subtrees are replayed this way without re-recording their contents.
func (r *Recorder) AppendList(list *DisplayList, offset Offset) {
	if list == nil || !r.recording {
		return
	}
	r.ops = append(r.ops,
		opSave{},
		opTranslate{dx: offset.X, dy: offset.Y},
		opSublist{list: list},
		opRestore{},
	)
}

// recordingCanvas captures canvas calls into the recorder's op buffer.
type recordingCanvas struct {
	recorder *Recorder
}

func (c *recordingCanvas) Save() {
	c.recorder.ops = append(c.recorder.ops, opSave{})
}

func (c *recordingCanvas) Restore() {
	c.recorder.ops = append(c.recorder.ops, opRestore{})
}

func (c *recordingCanvas) Translate(dx, dy float64) {
	c.recorder.ops = append(c.recorder.ops, opTranslate{dx: dx, dy: dy})
}

func (c *recordingCanvas) DrawRect(rect Rect, color Color) {
	c.recorder.ops = append(c.recorder.ops, opRect{rect: rect, color: color})
}

func (c *recordingCanvas) DrawText(text string, origin Offset, color Color) {
	c.recorder.ops = append(c.recorder.ops, opText{text: text, origin: origin, color: color})
}
