package core

// Input tracks key and pointer state from the event stream.
type Input struct {
	keys           map[Key]bool
	mouseX, mouseY float64
	prevX, prevY   float64
	buttons        map[int]bool
	moved          bool
}

func NewInput() *Input { return &Input{keys: map[Key]bool{}, buttons: map[int]bool{}} }

func (in *Input) Handle(ev Event) {
	switch e := ev.(type) {
	case EventKey:
		in.keys[e.Key] = e.Down
	case EventMouseMove:
		if !in.moved {
			in.prevX, in.prevY = e.X, e.Y
			in.moved = true
		}
		in.mouseX, in.mouseY = e.X, e.Y
	case EventMouseButton:
		in.buttons[e.Button] = e.Down
	}
}

func (in *Input) IsKeyDown(k Key) bool      { return in.keys[k] }
func (in *Input) IsButtonDown(b int) bool   { return in.buttons[b] }
func (in *Input) Mouse() (float64, float64) { return in.mouseX, in.mouseY }

// MouseDelta returns the pointer motion since the previous call.
func (in *Input) MouseDelta() (dx, dy float64) {
	dx, dy = in.mouseX-in.prevX, in.mouseY-in.prevY
	in.prevX, in.prevY = in.mouseX, in.mouseY
	return dx, dy
}
