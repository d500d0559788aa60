// keycodes.go — Fixed key-name → (code, keyCode) resolution table (spec §4.3).
//
// When a caller omits `code`/`keyCode` for a named key, CDP still needs
// both to synthesize a faithful keyboard event. Named non-printable keys
// are resolved from the fixed table below; single characters fall back to
// a letter/digit heuristic; anything else is sent without code/keyCode,
// which CDP tolerates for most purposes.
package driver

import "strings"

type keyCodeInfo struct {
	code    string
	keyCode int
}

var namedKeyTable = map[string]keyCodeInfo{
	"ArrowUp":    {"ArrowUp", 38},
	"ArrowDown":  {"ArrowDown", 40},
	"ArrowLeft":  {"ArrowLeft", 37},
	"ArrowRight": {"ArrowRight", 39},
	"Home":       {"Home", 36},
	"End":        {"End", 35},
	"PageUp":     {"PageUp", 33},
	"PageDown":   {"PageDown", 34},
	"Enter":      {"Enter", 13},
	"Tab":        {"Tab", 9},
	"Escape":     {"Escape", 27},
	"Backspace":  {"Backspace", 8},
	"Delete":     {"Delete", 46},
	"Insert":     {"Insert", 45},
	"Meta":       {"MetaLeft", 91},
	"Control":    {"ControlLeft", 17},
	"Shift":      {"ShiftLeft", 16},
	"Alt":        {"AltLeft", 18},
	"CapsLock":   {"CapsLock", 20},
	"Space":      {"Space", 32},
	" ":          {"Space", 32},
}

func init() {
	for i := 1; i <= 24; i++ {
		name := "F" + itoa(i)
		// F1-F12 are the standard DOM keycodes 112-123; F13-F24 continue the
		// run contiguously per the CDP/Chromium virtual keycode table.
		namedKeyTable[name] = keyCodeInfo{code: name, keyCode: 111 + i}
	}
}

func itoa(n int) string {
	if n == 0 {
		return "0"
	}
	var digits []byte
	for n > 0 {
		digits = append([]byte{byte('0' + n%10)}, digits...)
		n /= 10
	}
	return string(digits)
}

// resolveKeyCode fills in code/keyCode for a named key or single character
// when the caller didn't supply them. Returns ok=false when no resolution
// is possible and the fields should be omitted from the dispatched event.
func resolveKeyCode(key string) (code string, keyCode int, ok bool) {
	if info, found := namedKeyTable[key]; found {
		return info.code, info.keyCode, true
	}

	if len([]rune(key)) == 1 {
		r := []rune(key)[0]
		switch {
		case r >= 'a' && r <= 'z':
			return "Key" + strings.ToUpper(string(r)), int(r) - 32, true
		case r >= 'A' && r <= 'Z':
			return "Key" + string(r), int(r), true
		case r >= '0' && r <= '9':
			return "Digit" + string(r), int(r), true
		}
	}

	return "", 0, false
}
