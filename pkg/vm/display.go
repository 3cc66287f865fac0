package vm

// Display dimensions in pixels.
const (
	DisplayWidth  = 64
	DisplayHeight = 32
)

// Framebuffer is the 64x32 monochrome display, stored row-major.
// Each cell is 0 (off) or 1 (on). Only Clear and Draw mutate it.
type Framebuffer struct {
	pixels [DisplayWidth * DisplayHeight]uint8
	dirty  bool
}

// At reports whether the pixel at (x, y) is on. Coordinates wrap.
func (fb *Framebuffer) At(x, y int) bool {
	return fb.pixels[index(x, y)] != 0
}

// Clear turns every pixel off.
func (fb *Framebuffer) Clear() {
	fb.pixels = [DisplayWidth * DisplayHeight]uint8{}
	fb.dirty = true
}

// Draw XORs an 8-pixel-wide sprite onto the display with its top-left corner
// at (x, y). The most significant bit of each row is drawn leftmost, and every
// pixel wraps around the display edges. It returns true if any pixel went
// from on to off.
func (fb *Framebuffer) Draw(x, y int, rows []byte) bool {
	collision := false
	for row, bits := range rows {
		for col := 0; col < 8; col++ {
			if bits&(0x80>>col) == 0 {
				continue
			}
			i := index(x+col, y+row)
			if fb.pixels[i] == 1 {
				collision = true
			}
			fb.pixels[i] ^= 1
		}
	}
	fb.dirty = true
	return collision
}

// Snapshot returns a copy of the pixel cells, row-major.
func (fb *Framebuffer) Snapshot() [DisplayWidth * DisplayHeight]uint8 {
	return fb.pixels
}

// Dirty reports whether the framebuffer changed since the last ClearDirty.
func (fb *Framebuffer) Dirty() bool {
	return fb.dirty
}

// ClearDirty resets the change flag after a renderer consumed the frame.
func (fb *Framebuffer) ClearDirty() {
	fb.dirty = false
}

// Lit returns the number of pixels currently on.
func (fb *Framebuffer) Lit() int {
	n := 0
	for _, p := range fb.pixels {
		n += int(p)
	}
	return n
}

func index(x, y int) int {
	x %= DisplayWidth
	if x < 0 {
		x += DisplayWidth
	}
	y %= DisplayHeight
	if y < 0 {
		y += DisplayHeight
	}
	return y*DisplayWidth + x
}
