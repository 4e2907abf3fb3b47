package render

import (
	"math"
	"time"
	"unicode/utf8"
)

// textY vertically centres the small font on the panel.
const textY = (Height - SmallHeight) / 2

// MeasureText returns the rendered width of text in pixels.
func MeasureText(text string) int {
	n := utf8.RuneCountInString(text)
	if n == 0 {
		return 0
	}
	return n*(SmallWidth+SmallSpacing) - SmallSpacing
}

// DrawText draws text starting at x, y.
func DrawText(f *Frame, text string, x, y int, color ColorFunc) {
	for _, r := range text {
		if x > f.Width {
			return
		}
		if x+SmallWidth >= 0 {
			DrawChar(f, r, x, y, color)
		}
		x += SmallWidth + SmallSpacing
	}
}

// DrawTextCentered draws text centred horizontally at row y.
func DrawTextCentered(f *Frame, text string, y int, color ColorFunc) {
	DrawText(f, text, (f.Width-MeasureText(text))/2, y, color)
}

// Fits reports whether text fits the panel without scrolling.
func Fits(text string, width int) bool {
	return MeasureText(text) <= width
}

// ScrollDuration is the time one full pass of text takes at speed pixels per
// second: it enters at the right edge and leaves at the left. Text that fits
// does not scroll and returns 0.
func ScrollDuration(text string, width, speed int) time.Duration {
	if Fits(text, width) || speed <= 0 {
		return 0
	}
	px := MeasureText(text) + width
	return time.Duration(float64(px) / float64(speed) * float64(time.Second))
}

// RenderText draws a message elapsed after it first appeared. Text that fits
// is centred; longer text scrolls right to left at speed pixels per second,
// repeating after each pass.
func RenderText(f *Frame, text string, elapsed time.Duration, speed int, color ColorFunc) {
	f.Clear()
	if Fits(text, f.Width) || speed <= 0 {
		DrawTextCentered(f, text, textY, color)
		return
	}

	cycle := MeasureText(text) + f.Width
	offset := int(math.Floor(elapsed.Seconds()*float64(speed))) % cycle
	DrawText(f, text, f.Width-offset, textY, color)
}
