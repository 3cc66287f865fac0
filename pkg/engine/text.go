package engine

import (
	"strings"

	"github.com/mgutz/ansi"
	"github.com/zurustar/chip-et/pkg/vm"
)

// Half-block glyphs, indexed by top<<1 | bottom.
var halfBlocks = [4]string{" ", "▄", "▀", "█"}

// RenderText renders the framebuffer as text, two pixel rows per line,
// giving 64 columns by 16 lines. When style is non-empty every line is
// wrapped in that mgutz/ansi style (for example "green+h").
func RenderText(fb *vm.Framebuffer, style string) string {
	var on, off string
	if style != "" {
		on = ansi.ColorCode(style)
		off = ansi.Reset
	}

	var sb strings.Builder
	sb.Grow((vm.DisplayWidth*3 + len(on) + len(off) + 1) * vm.DisplayHeight / 2)
	for y := 0; y < vm.DisplayHeight; y += 2 {
		sb.WriteString(on)
		for x := 0; x < vm.DisplayWidth; x++ {
			idx := 0
			if fb.At(x, y) {
				idx |= 2
			}
			if fb.At(x, y+1) {
				idx |= 1
			}
			sb.WriteString(halfBlocks[idx])
		}
		sb.WriteString(off)
		sb.WriteByte('\n')
	}
	return sb.String()
}
