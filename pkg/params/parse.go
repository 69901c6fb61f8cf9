package params

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// ErrMalformed is wrapped by every parse failure
var ErrMalformed = errors.New("params: malformed value")

// Size is a width/height pair
type Size struct {
	Width  int `json:"width"`
	Height int `json:"height"`
}

func (s Size) String() string {
	return fmt.Sprintf("%dx%d", s.Width, s.Height)
}

// Area returns width*height
func (s Size) Area() int { return s.Width * s.Height }

// ParseSize parses "WxH"
func ParseSize(s string) (Size, error) {
	w, h, ok := strings.Cut(strings.TrimSpace(s), "x")
	if !ok {
		w, h, ok = strings.Cut(strings.TrimSpace(s), "X")
	}
	if !ok {
		return Size{}, fmt.Errorf("%w: size %q", ErrMalformed, s)
	}
	width, err1 := strconv.Atoi(w)
	height, err2 := strconv.Atoi(h)
	if err1 != nil || err2 != nil || width <= 0 || height <= 0 {
		return Size{}, fmt.Errorf("%w: size %q", ErrMalformed, s)
	}
	return Size{width, height}, nil
}

// ParseSizeList parses "W1xH1,W2xH2"
func ParseSizeList(s string) ([]Size, error) {
	if strings.TrimSpace(s) == "" {
		return nil, nil
	}
	var out []Size
	for _, part := range strings.Split(s, ",") {
		sz, err := ParseSize(part)
		if err != nil {
			return nil, err
		}
		out = append(out, sz)
	}
	return out, nil
}

// SizeList joins sizes with commas
func SizeList(sizes []Size) string {
	parts := make([]string, len(sizes))
	for i, s := range sizes {
		parts[i] = s.String()
	}
	return strings.Join(parts, ",")
}

// ContainsSize reports whether s appears in list
func ContainsSize(list []Size, s Size) bool {
	for _, c := range list {
		if c == s {
			return true
		}
	}
	return false
}

// ParseRange parses "lo,hi"
func ParseRange(s string) (lo, hi int, err error) {
	a, b, ok := strings.Cut(s, ",")
	if !ok {
		return 0, 0, fmt.Errorf("%w: range %q", ErrMalformed, s)
	}
	lo, err1 := strconv.Atoi(strings.TrimSpace(a))
	hi, err2 := strconv.Atoi(strings.TrimSpace(b))
	if err1 != nil || err2 != nil {
		return 0, 0, fmt.Errorf("%w: range %q", ErrMalformed, s)
	}
	return lo, hi, nil
}

// ParsePoint parses "x,y", used by the touch index keys
func ParsePoint(s string) (x, y int, err error) {
	x, y, err = ParseRange(s)
	if err != nil {
		return 0, 0, fmt.Errorf("%w: point %q", ErrMalformed, s)
	}
	return x, y, nil
}

// Area is one weighted focus or metering rectangle in the -1000..1000 space
type Area struct {
	Left   int `json:"left"`
	Top    int `json:"top"`
	Right  int `json:"right"`
	Bottom int `json:"bottom"`
	Weight int `json:"weight"`
}

// IsZero reports whether the area is the all-zero clear sentinel
func (a Area) IsZero() bool {
	return a == Area{}
}

// ParseAreas parses "(l,t,r,b,w),(l,t,r,b,w)" and rejects more than limit
// areas (0 means no limit)
func ParseAreas(s string, limit int) ([]Area, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, fmt.Errorf("%w: empty area list", ErrMalformed)
	}
	var out []Area
	for len(s) > 0 {
		if s[0] != '(' {
			return nil, fmt.Errorf("%w: area list %q", ErrMalformed, s)
		}
		end := strings.IndexByte(s, ')')
		if end < 0 {
			return nil, fmt.Errorf("%w: unterminated area %q", ErrMalformed, s)
		}
		fields := strings.Split(s[1:end], ",")
		if len(fields) != 5 {
			return nil, fmt.Errorf("%w: area %q needs 5 fields", ErrMalformed, s[:end+1])
		}
		var v [5]int
		for i, f := range fields {
			n, err := strconv.Atoi(strings.TrimSpace(f))
			if err != nil {
				return nil, fmt.Errorf("%w: area field %q", ErrMalformed, f)
			}
			v[i] = n
		}
		out = append(out, Area{v[0], v[1], v[2], v[3], v[4]})
		if limit > 0 && len(out) > limit {
			return nil, fmt.Errorf("%w: more than %d areas", ErrMalformed, limit)
		}
		s = s[end+1:]
		if strings.HasPrefix(s, ",") {
			s = s[1:]
			if s == "" {
				return nil, fmt.Errorf("%w: trailing comma", ErrMalformed)
			}
		}
	}
	return out, nil
}

// ValidateAreas checks bounds, ordering and weight. The all-zero sentinel is
// accepted as "clear"; it is only valid as the sole entry.
func ValidateAreas(areas []Area) error {
	for i, a := range areas {
		if a.IsZero() {
			if len(areas) != 1 {
				return fmt.Errorf("%w: clear area mixed with %d others", ErrMalformed, len(areas)-1)
			}
			continue
		}
		switch {
		case a.Left < AreaMin || a.Top < AreaMin || a.Right > AreaMax || a.Bottom > AreaMax:
			return fmt.Errorf("%w: area %d out of bounds", ErrMalformed, i)
		case a.Left >= a.Right || a.Top >= a.Bottom:
			return fmt.Errorf("%w: area %d is empty or inverted", ErrMalformed, i)
		case a.Weight < AreaWeightMin || a.Weight > AreaWeightMax:
			return fmt.Errorf("%w: area %d weight %d", ErrMalformed, i, a.Weight)
		}
	}
	return nil
}

// Cleared reports whether the area list is the clear sentinel
func Cleared(areas []Area) bool {
	return len(areas) == 1 && areas[0].IsZero()
}

// ToPreview maps an area from -1000..1000 into preview pixel coordinates
func (a Area) ToPreview(preview Size) (x, y, dx, dy int) {
	x1 := (a.Left + 1000) * preview.Width / 2000
	y1 := (a.Top + 1000) * preview.Height / 2000
	x2 := (a.Right + 1000) * preview.Width / 2000
	y2 := (a.Bottom + 1000) * preview.Height / 2000
	return x1, y1, x2 - x1, y2 - y1
}
