package monitor

import (
	"time"

	"github.com/zurustar/chip-et/pkg/vm"
)

// DefaultLatch is how long a typed key stays pressed.
// Terminals report key presses but never key releases.
const DefaultLatch = 150 * time.Millisecond

// KeyLatch turns discrete terminal key presses into held CHIP-8 keys.
type KeyLatch struct {
	hold  time.Duration
	until [vm.NumKeys]time.Time
}

// NewKeyLatch creates a latch that holds each key for hold.
func NewKeyLatch(hold time.Duration) *KeyLatch {
	return &KeyLatch{hold: hold}
}

// Press marks key k as held from now for the latch duration.
// A repeated press extends the hold.
func (l *KeyLatch) Press(k uint8, now time.Time) {
	if int(k) < vm.NumKeys {
		l.until[k] = now.Add(l.hold)
	}
}

// Snapshot returns the keys still held at now.
func (l *KeyLatch) Snapshot(now time.Time) [vm.NumKeys]bool {
	var keys [vm.NumKeys]bool
	for k, t := range l.until {
		keys[k] = now.Before(t)
	}
	return keys
}

// runeKey maps '0'-'9', 'a'-'f' and 'A'-'F' to a keypad key.
func runeKey(ch rune) (uint8, bool) {
	switch {
	case ch >= '0' && ch <= '9':
		return uint8(ch - '0'), true
	case ch >= 'a' && ch <= 'f':
		return uint8(ch-'a') + 0xA, true
	case ch >= 'A' && ch <= 'F':
		return uint8(ch-'A') + 0xA, true
	}
	return 0, false
}
