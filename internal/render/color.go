package render

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// Palette used by the clock face and text. ColorClock is the default accent
// for the clock digits and messages until a colour is set.
var (
	ColorBlack  = NewRGB(0, 0, 0)
	ColorWhite  = NewRGB(255, 255, 255)
	ColorClock  = NewRGB(255, 170, 60)
	ColorDate   = NewRGB(180, 255, 160)
	ColorDayBox = NewRGB(220, 40, 40)
)

// HSV converts hue (0-1, wraps), saturation and value (0-1) to RGB.
func HSV(h, s, v float64) RGB {
	h -= math.Floor(h)
	i := int(h * 6)
	f := h*6 - float64(i)
	p := v * (1 - s)
	q := v * (1 - f*s)
	t := v * (1 - (1-f)*s)

	var r, g, b float64
	switch i % 6 {
	case 0:
		r, g, b = v, t, p
	case 1:
		r, g, b = q, v, p
	case 2:
		r, g, b = p, v, t
	case 3:
		r, g, b = p, q, v
	case 4:
		r, g, b = t, p, v
	default:
		r, g, b = v, p, q
	}
	return RGB{R: unit(r), G: unit(g), B: unit(b)}
}

func unit(v float64) uint8 {
	switch {
	case v <= 0:
		return 0
	case v >= 1:
		return 255
	default:
		return uint8(v*255 + 0.5)
	}
}

// ErrInvalidColor is returned by ParseRGB.
var ErrInvalidColor = errors.New("render: invalid colour")

// ParseRGB parses "r,g,b" with each channel 0-255.
func ParseRGB(s string) (RGB, error) {
	parts := strings.Split(s, ",")
	if len(parts) != 3 {
		return RGB{}, fmt.Errorf("%w: %q is not r,g,b", ErrInvalidColor, s)
	}
	var ch [3]uint8
	for i, p := range parts {
		v, err := strconv.ParseUint(strings.TrimSpace(p), 10, 8)
		if err != nil {
			return RGB{}, fmt.Errorf("%w: channel %q not in 0-255", ErrInvalidColor, strings.TrimSpace(p))
		}
		ch[i] = uint8(v)
	}
	return NewRGB(ch[0], ch[1], ch[2]), nil
}

// Triplet formats c as "r,g,b", the form ParseRGB accepts.
func (c RGB) Triplet() string {
	return fmt.Sprintf("%d,%d,%d", c.R, c.G, c.B)
}
