package monitor

import (
	"fmt"
	"strings"

	"github.com/mgutz/ansi"
	"github.com/zurustar/chip-et/pkg/opcode"
	"github.com/zurustar/chip-et/pkg/vm"
)

// Changed values are drawn bold yellow. gocui only understands the basic
// SGR codes, so no high-intensity styles here.
var changedColor = ansi.ColorCode("yellow+b")

func highlight(s string, changed bool) string {
	if !changed {
		return s
	}
	return changedColor + s + ansi.Reset
}

// Snapshot is what the registers view shows for one frame.
type Snapshot struct {
	State  vm.State
	Next   opcode.Instruction
	Status string
}

// TakeSnapshot reads the machine state and the instruction at PC.
func TakeSnapshot(m *vm.VM) Snapshot {
	s := Snapshot{State: m.State()}
	if b := m.Memory(s.State.PC, 2); len(b) == 2 {
		s.Next = opcode.Decode(uint16(b[0])<<8 | uint16(b[1]))
	}
	return s
}

// FormatRegisters renders cur, highlighting values that differ from prev.
func FormatRegisters(prev, cur Snapshot) string {
	p, c := prev.State, cur.State
	var sb strings.Builder

	fmt.Fprintf(&sb, "PC %s  I %s\n",
		highlight(fmt.Sprintf("%03X", c.PC), c.PC != p.PC),
		highlight(fmt.Sprintf("%03X", c.I), c.I != p.I))

	for row := 0; row < 4; row++ {
		for col := 0; col < 4; col++ {
			r := row*4 + col
			if col > 0 {
				sb.WriteString("  ")
			}
			fmt.Fprintf(&sb, "V%X %s", r, highlight(fmt.Sprintf("%02X", c.V[r]), c.V[r] != p.V[r]))
		}
		sb.WriteByte('\n')
	}

	fmt.Fprintf(&sb, "DT %s  ST %s\n",
		highlight(fmt.Sprintf("%02X", c.DelayTimer), c.DelayTimer != p.DelayTimer),
		highlight(fmt.Sprintf("%02X", c.SoundTimer), c.SoundTimer != p.SoundTimer))

	stack := make([]string, len(c.Stack))
	for i, a := range c.Stack {
		stack[i] = fmt.Sprintf("%03X", a)
	}
	fmt.Fprintf(&sb, "SP %s  [%s]\n",
		highlight(fmt.Sprintf("%X", len(c.Stack)), len(c.Stack) != len(p.Stack)),
		strings.Join(stack, " "))

	fmt.Fprintf(&sb, "cycles %d\n", c.Cycles)
	fmt.Fprintf(&sb, "next   %s\n", cur.Next.String())
	if cur.Status != "" {
		fmt.Fprintf(&sb, "%s\n", cur.Status)
	}
	return sb.String()
}
