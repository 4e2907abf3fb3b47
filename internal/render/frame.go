// Package render draws frames for the 53x11 Galactic Unicorn panel.
//
// Everything here is a pure function of its inputs (time, text, effect
// parameters): no I/O and no failure modes. The display arbiter decides what
// to draw; this package only knows how.
package render

import "fmt"

// Panel dimensions of the Galactic Unicorn.
const (
	Width  = 53
	Height = 11
)

// BytesPerPixel is the number of bytes per pixel (RGB).
const BytesPerPixel = 3

// RGB represents an RGB color with 8-bit channels.
type RGB struct {
	R, G, B uint8
}

// NewRGB creates a new RGB color.
func NewRGB(r, g, b uint8) RGB {
	return RGB{R: r, G: g, B: b}
}

// String returns a string representation of the RGB color.
func (c RGB) String() string {
	return fmt.Sprintf("RGB(%d, %d, %d)", c.R, c.G, c.B)
}

// Scale returns c dimmed to level/255.
func (c RGB) Scale(level uint8) RGB {
	return RGB{
		R: uint8(uint16(c.R) * uint16(level) / 255),
		G: uint8(uint16(c.G) * uint16(level) / 255),
		B: uint8(uint16(c.B) * uint16(level) / 255),
	}
}

// Frame represents a single frame of pixel data.
type Frame struct {
	Width  int
	Height int
	// Pixels is a flat array of RGB values: [r0,g0,b0, r1,g1,b1, ...]
	Pixels []byte
}

// NewFrame creates a new frame filled with black.
func NewFrame(width, height int) *Frame {
	return &Frame{
		Width:  width,
		Height: height,
		Pixels: make([]byte, width*height*BytesPerPixel),
	}
}

// SetPixel sets a single pixel. Out of bounds coordinates are silently ignored.
func (f *Frame) SetPixel(x, y int, color RGB) {
	if x < 0 || x >= f.Width || y < 0 || y >= f.Height {
		return
	}
	offset := (y*f.Width + x) * BytesPerPixel
	f.Pixels[offset] = color.R
	f.Pixels[offset+1] = color.G
	f.Pixels[offset+2] = color.B
}

// At returns the color at x, y. Out of bounds reads are black.
func (f *Frame) At(x, y int) RGB {
	if x < 0 || x >= f.Width || y < 0 || y >= f.Height {
		return RGB{}
	}
	offset := (y*f.Width + x) * BytesPerPixel
	return RGB{R: f.Pixels[offset], G: f.Pixels[offset+1], B: f.Pixels[offset+2]}
}

// Fill fills the entire frame with color.
func (f *Frame) Fill(color RGB) {
	for i := 0; i < f.Width*f.Height; i++ {
		offset := i * BytesPerPixel
		f.Pixels[offset] = color.R
		f.Pixels[offset+1] = color.G
		f.Pixels[offset+2] = color.B
	}
}

// Clear clears the frame to black.
func (f *Frame) Clear() {
	clear(f.Pixels)
}

// Clone creates a deep copy of the frame.
func (f *Frame) Clone() *Frame {
	c := &Frame{Width: f.Width, Height: f.Height, Pixels: make([]byte, len(f.Pixels))}
	copy(c.Pixels, f.Pixels)
	return c
}

// FillRect fills a rectangular area.
func (f *Frame) FillRect(x, y, width, height int, color RGB) {
	for dy := 0; dy < height; dy++ {
		for dx := 0; dx < width; dx++ {
			f.SetPixel(x+dx, y+dy, color)
		}
	}
}

// DrawRect draws a rectangle outline.
func (f *Frame) DrawRect(x, y, width, height int, color RGB) {
	for i := 0; i < width; i++ {
		f.SetPixel(x+i, y, color)
		f.SetPixel(x+i, y+height-1, color)
	}
	for i := 0; i < height; i++ {
		f.SetPixel(x, y+i, color)
		f.SetPixel(x+width-1, y+i, color)
	}
}

// Dim scales every pixel in place to level/255.
func (f *Frame) Dim(level uint8) {
	if level == 255 {
		return
	}
	for i, v := range f.Pixels {
		f.Pixels[i] = uint8(uint16(v) * uint16(level) / 255)
	}
}

// Lit reports whether any pixel is non-black.
func (f *Frame) Lit() bool {
	for _, v := range f.Pixels {
		if v != 0 {
			return true
		}
	}
	return false
}
