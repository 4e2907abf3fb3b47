package render

import (
	"fmt"
	"strings"
	"time"
)

// ClockStyle selects how the clock face is colored.
type ClockStyle int

const (
	ClockColor ClockStyle = iota
	ClockRainbow
)

func (s ClockStyle) String() string {
	if s == ClockRainbow {
		return "rainbow"
	}
	return "color"
}

// ParseClockStyle parses "color" or "rainbow"; anything else is ClockColor.
func ParseClockStyle(s string) ClockStyle {
	if strings.EqualFold(strings.TrimSpace(s), "rainbow") {
		return ClockRainbow
	}
	return ClockColor
}

// Clock face layout: HH:MM:SS in 4x7 digits, then a calendar day box.
const (
	clockY      = 2
	clockX      = 1
	digitStep   = DigitWidth + 1
	colonWidth  = 2
	dayBoxX     = 39
	dayBoxWidth = Width - dayBoxX
	dayHeader   = 3
)

// RenderClock draws the clock face for t in accent, or in a moving rainbow.
// Colons blink each half second.
func RenderClock(f *Frame, t time.Time, style ClockStyle, accent RGB) {
	f.Clear()

	color := Solid(accent)
	if style == ClockRainbow {
		shift := float64(t.Second()%10)/10 + float64(t.Nanosecond())/1e10
		color = func(x, _ int) RGB {
			return HSV(float64(x)/float64(Width)+shift, 1, 1)
		}
	}

	colon := t.Nanosecond() < int(500*time.Millisecond)
	x := clockX
	for i, v := range []int{t.Hour(), t.Minute(), t.Second()} {
		if i > 0 {
			if colon {
				f.SetPixel(x, clockY+2, color(x, clockY+2))
				f.SetPixel(x, clockY+4, color(x, clockY+4))
			}
			x += colonWidth
		}
		DrawDigit(f, v/10, x, clockY, color)
		DrawDigit(f, v%10, x+digitStep, clockY, color)
		x += 2 * digitStep
	}

	renderDayBox(f, t.Day())
}

func renderDayBox(f *Frame, day int) {
	f.FillRect(dayBoxX, 0, dayBoxWidth, dayHeader, ColorDayBox)
	f.DrawRect(dayBoxX, 0, dayBoxWidth, Height, ColorDayBox)

	label := fmt.Sprintf("%d", day)
	x := dayBoxX + (dayBoxWidth-MeasureText(label))/2
	DrawText(f, label, x, dayHeader+2, Solid(ColorWhite))
}

// RenderDate draws the date, e.g. "SUN 18 OCT".
func RenderDate(f *Frame, t time.Time) {
	f.Clear()
	label := strings.ToUpper(t.Format("Mon 2 Jan"))
	DrawTextCentered(f, label, textY, Solid(ColorDate))
}

// ClockState is the short time string published on the clock state topic.
func ClockState(t time.Time) string {
	return t.Format("15:04")
}
