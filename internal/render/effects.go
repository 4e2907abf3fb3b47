package render

import (
	"math"
	"strings"
	"time"
)

// EffectID names a visual effect. The zero value means no effect.
type EffectID string

// Effects offered by the device.
const (
	EffectNone    EffectID = "none"
	EffectFire    EffectID = "fire"
	EffectRainbow EffectID = "rainbow"
	EffectPlasma  EffectID = "plasma"
	EffectSparkle EffectID = "sparkle"
)

// EffectParams tunes an effect.
type EffectParams struct {
	Speed float64 // 1 is the default pace
	Hue   float64 // base hue (0-1) for single-hue effects
}

// DefaultParams returns the parameters used when none are given.
func DefaultParams() EffectParams {
	return EffectParams{Speed: 1}
}

type effectFunc func(f *Frame, t float64, p EffectParams)

var effects = map[EffectID]effectFunc{
	EffectFire:    fire,
	EffectRainbow: rainbow,
	EffectPlasma:  plasma,
	EffectSparkle: sparkle,
}

// effectOrder is the cycle order for the effect button.
var effectOrder = []EffectID{EffectFire, EffectRainbow, EffectPlasma, EffectSparkle}

// EffectNames lists every selectable option, "none" first.
func EffectNames() []string {
	names := []string{string(EffectNone)}
	for _, id := range effectOrder {
		names = append(names, string(id))
	}
	return names
}

// ParseEffect resolves an effect name. "none" and "" are valid and mean no effect.
func ParseEffect(name string) (EffectID, bool) {
	id := EffectID(strings.ToLower(strings.TrimSpace(name)))
	if id == "" || id == EffectNone {
		return EffectNone, true
	}
	_, ok := effects[id]
	return id, ok
}

// NextEffect returns the effect after id in cycle order; after the last one it returns none.
func NextEffect(id EffectID) EffectID {
	if id == EffectNone || id == "" {
		return effectOrder[0]
	}
	for i, e := range effectOrder {
		if e == id {
			if i+1 < len(effectOrder) {
				return effectOrder[i+1]
			}
			return EffectNone
		}
	}
	return effectOrder[0]
}

// RenderEffect draws effect id as it looks elapsed after it started.
// Unknown ids and EffectNone clear the frame.
func RenderEffect(f *Frame, id EffectID, p EffectParams, elapsed time.Duration) {
	f.Clear()
	fn, ok := effects[id]
	if !ok {
		return
	}
	if p.Speed <= 0 {
		p.Speed = 1
	}
	fn(f, elapsed.Seconds()*p.Speed, p)
}

// fire maps value noise, rising over time and fading with height, onto a
// black-red-yellow-white palette.
func fire(f *Frame, t float64, _ EffectParams) {
	for y := 0; y < f.Height; y++ {
		// 1 at the bottom row, 0 at the top.
		height := float64(f.Height-1-y) / float64(f.Height-1)
		for x := 0; x < f.Width; x++ {
			n := valueNoise(float64(x)*0.35, float64(y)*0.45+t*6, t*0.7)
			heat := clamp01(n*1.3 - (1-height)*0.9 + height*0.2)
			f.SetPixel(x, y, firePalette(heat))
		}
	}
}

func firePalette(h float64) RGB {
	switch {
	case h < 0.35:
		return RGB{R: unit(h / 0.35)}
	case h < 0.7:
		return RGB{R: 255, G: unit((h - 0.35) / 0.35 * 0.8)}
	default:
		v := (h - 0.7) / 0.3
		return RGB{R: 255, G: unit(0.8 + v*0.2), B: unit(v * 0.8)}
	}
}

func rainbow(f *Frame, t float64, _ EffectParams) {
	for x := 0; x < f.Width; x++ {
		c := HSV(float64(x)/float64(f.Width)-t*0.15, 1, 1)
		for y := 0; y < f.Height; y++ {
			f.SetPixel(x, y, c)
		}
	}
}

func plasma(f *Frame, t float64, p EffectParams) {
	for y := 0; y < f.Height; y++ {
		for x := 0; x < f.Width; x++ {
			fx, fy := float64(x)/8, float64(y)/4
			v := math.Sin(fx+t) + math.Sin(fy+t*0.7) + math.Sin((fx+fy)/2+t*1.3) +
				math.Sin(math.Hypot(fx-3, fy-1.5)+t)
			f.SetPixel(x, y, HSV(p.Hue+v/8, 0.9, 0.9))
		}
	}
}

// sparkle lights a random-looking subset of pixels each tenth of a second
// and fades them out over the slot.
func sparkle(f *Frame, t float64, p EffectParams) {
	slot := math.Floor(t * 10)
	fade := 1 - (t*10 - slot)
	for y := 0; y < f.Height; y++ {
		for x := 0; x < f.Width; x++ {
			h := hash3(uint32(x), uint32(y), uint32(int64(slot)))
			if h%23 != 0 {
				continue
			}
			hue := p.Hue + float64(h>>8&0xff)/255*0.2
			f.SetPixel(x, y, HSV(hue, 0.3, fade))
		}
	}
}

// hash3 is a small integer mixer; good enough for visual noise.
func hash3(x, y, z uint32) uint32 {
	h := x*0x8da6b343 ^ y*0xd8163841 ^ z*0xcb1ab31f
	h ^= h >> 13
	h *= 0x5bd1e995
	h ^= h >> 15
	return h
}

func lattice(x, y, z int) float64 {
	return float64(hash3(uint32(int32(x)), uint32(int32(y)), uint32(int32(z)))&0xffff) / 0xffff
}

// valueNoise is trilinearly interpolated lattice noise in [0, 1].
func valueNoise(x, y, z float64) float64 {
	x0, y0, z0 := math.Floor(x), math.Floor(y), math.Floor(z)
	fx, fy, fz := smooth(x-x0), smooth(y-y0), smooth(z-z0)
	ix, iy, iz := int(x0), int(y0), int(z0)

	lerp := func(a, b, t float64) float64 { return a + (b-a)*t }
	plane := func(z int) float64 {
		a := lerp(lattice(ix, iy, z), lattice(ix+1, iy, z), fx)
		b := lerp(lattice(ix, iy+1, z), lattice(ix+1, iy+1, z), fx)
		return lerp(a, b, fy)
	}
	return lerp(plane(iz), plane(iz+1), fz)
}

func smooth(t float64) float64 {
	return t * t * (3 - 2*t)
}

func clamp01(v float64) float64 {
	return math.Max(0, math.Min(1, v))
}
