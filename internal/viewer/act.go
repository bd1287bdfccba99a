package viewer

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Act is a named chapter offset within a recording.
type Act struct {
	Title  string        `json:"title"`
	Offset time.Duration `json:"offset"`
}

// ZeroAct starts playback at the beginning of the recording.
var ZeroAct = Act{Title: "0:00"}

// ParseAct parses a "mm:ss" string. The title is the input itself, so
// String returns exactly what was parsed.
func ParseAct(s string) (Act, bool) {
	parts := strings.Split(s, ":")
	if len(parts) != 2 {
		return Act{}, false
	}
	minutes, ok := parseDigits(parts[0])
	if !ok {
		return Act{}, false
	}
	seconds, ok := parseDigits(parts[1])
	if !ok {
		return Act{}, false
	}
	offset := time.Duration(minutes)*time.Minute + time.Duration(seconds)*time.Second
	return Act{Title: s, Offset: offset}, true
}

// ParseActs parses every entry of raw, failing on the first invalid one.
func ParseActs(raw []string) ([]Act, error) {
	acts := make([]Act, 0, len(raw))
	for _, s := range raw {
		act, ok := ParseAct(s)
		if !ok {
			return nil, fmt.Errorf("%w: act %q is not mm:ss", ErrDeepLinkInvalid, s)
		}
		acts = append(acts, act)
	}
	return acts, nil
}

// OffsetMillis is the offset from the start of the recording in milliseconds.
func (a Act) OffsetMillis() int64 {
	return a.Offset.Milliseconds()
}

func (a Act) String() string {
	return a.Title
}

// FormatOffset renders d as "m:ss", truncating to whole seconds.
func FormatOffset(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	total := int64(d / time.Second)
	return fmt.Sprintf("%d:%02d", total/60, total%60)
}

// parseDigits accepts only ASCII decimal digits, so signs and blanks are
// rejected.
func parseDigits(s string) (int64, bool) {
	if s == "" {
		return 0, false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return 0, false
		}
	}
	n, err := strconv.ParseInt(s, 10, 32)
	if err != nil {
		return 0, false
	}
	return n, true
}
