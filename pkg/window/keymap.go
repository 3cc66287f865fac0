package window

import (
	"fmt"
	"strings"

	"github.com/hajimehoshi/ebiten/v2"
	"github.com/zurustar/chip-et/pkg/config"
	"github.com/zurustar/chip-et/pkg/vm"
)

// Keymap は CHIP-8 のキー（0x0-0xF）を物理キーに対応付ける
type Keymap [vm.NumKeys]ebiten.Key

// DefaultKeymap キーボード左側の 4x4 ブロックを CHIP-8 キーパッドに割り当てる
//
//	1 2 3 4      1 2 3 C
//	Q W E R  ->  4 5 6 D
//	A S D F      7 8 9 E
//	Z X C V      A 0 B F
func DefaultKeymap() Keymap {
	return Keymap{
		0x0: ebiten.KeyX,
		0x1: ebiten.KeyDigit1,
		0x2: ebiten.KeyDigit2,
		0x3: ebiten.KeyDigit3,
		0x4: ebiten.KeyQ,
		0x5: ebiten.KeyW,
		0x6: ebiten.KeyE,
		0x7: ebiten.KeyA,
		0x8: ebiten.KeyS,
		0x9: ebiten.KeyD,
		0xA: ebiten.KeyZ,
		0xB: ebiten.KeyC,
		0xC: ebiten.KeyDigit4,
		0xD: ebiten.KeyR,
		0xE: ebiten.KeyF,
		0xF: ebiten.KeyV,
	}
}

// ParseKeymap 既定のキーマップにユーザー設定の上書きを適用する
// overrides のキーは "0"-"F"、値は ebiten のキー名（"J"、"KeyJ"、"ArrowUp" など）
func ParseKeymap(overrides map[string]string) (Keymap, error) {
	km := DefaultKeymap()
	for digit, name := range overrides {
		k, err := config.ParseKeyDigit(digit)
		if err != nil {
			return km, err
		}
		key, err := ParseKeyName(name)
		if err != nil {
			return km, err
		}
		km[k] = key
	}
	return km, nil
}

// ParseKeyName ebiten のキー名を大文字小文字を区別せずに解決する
// "KeyA" のような接頭辞付きの名前も受け付ける
func ParseKeyName(name string) (ebiten.Key, error) {
	want := strings.TrimPrefix(strings.ToLower(name), "key")
	if want == "" {
		return 0, fmt.Errorf("unknown key name: %q", name)
	}
	for k := ebiten.Key(0); k <= ebiten.KeyMax; k++ {
		if strings.TrimPrefix(strings.ToLower(k.String()), "key") == want {
			return k, nil
		}
	}
	return 0, fmt.Errorf("unknown key name: %q", name)
}

// Read 押下判定関数から 16 キーの状態を作る
// 実行時は ebiten.IsKeyPressed を渡す
func (km Keymap) Read(pressed func(ebiten.Key) bool) [vm.NumKeys]bool {
	var keys [vm.NumKeys]bool
	for i, key := range km {
		keys[i] = pressed(key)
	}
	return keys
}
