package render

import "unicode"

// Small font: 3x5 glyphs, one column of spacing.
const (
	SmallWidth   = 3
	SmallHeight  = 5
	SmallSpacing = 1
)

// Clock digits: 4x7 glyphs.
const (
	DigitWidth  = 4
	DigitHeight = 7
)

// smallFont rows are 3 bits wide, most significant bit leftmost.
var smallFont = map[rune][SmallHeight]uint8{
	'0': {0b111, 0b101, 0b101, 0b101, 0b111},
	'1': {0b010, 0b110, 0b010, 0b010, 0b111},
	'2': {0b111, 0b001, 0b111, 0b100, 0b111},
	'3': {0b111, 0b001, 0b011, 0b001, 0b111},
	'4': {0b101, 0b101, 0b111, 0b001, 0b001},
	'5': {0b111, 0b100, 0b111, 0b001, 0b111},
	'6': {0b111, 0b100, 0b111, 0b101, 0b111},
	'7': {0b111, 0b001, 0b010, 0b010, 0b010},
	'8': {0b111, 0b101, 0b111, 0b101, 0b111},
	'9': {0b111, 0b101, 0b111, 0b001, 0b111},

	'A': {0b010, 0b101, 0b111, 0b101, 0b101},
	'B': {0b110, 0b101, 0b110, 0b101, 0b110},
	'C': {0b011, 0b100, 0b100, 0b100, 0b011},
	'D': {0b110, 0b101, 0b101, 0b101, 0b110},
	'E': {0b111, 0b100, 0b110, 0b100, 0b111},
	'F': {0b111, 0b100, 0b110, 0b100, 0b100},
	'G': {0b011, 0b100, 0b101, 0b101, 0b011},
	'H': {0b101, 0b101, 0b111, 0b101, 0b101},
	'I': {0b111, 0b010, 0b010, 0b010, 0b111},
	'J': {0b001, 0b001, 0b001, 0b101, 0b010},
	'K': {0b101, 0b101, 0b110, 0b101, 0b101},
	'L': {0b100, 0b100, 0b100, 0b100, 0b111},
	'M': {0b101, 0b111, 0b111, 0b101, 0b101},
	'N': {0b110, 0b101, 0b101, 0b101, 0b101},
	'O': {0b010, 0b101, 0b101, 0b101, 0b010},
	'P': {0b110, 0b101, 0b110, 0b100, 0b100},
	'Q': {0b010, 0b101, 0b101, 0b110, 0b011},
	'R': {0b110, 0b101, 0b110, 0b101, 0b101},
	'S': {0b011, 0b100, 0b010, 0b001, 0b110},
	'T': {0b111, 0b010, 0b010, 0b010, 0b010},
	'U': {0b101, 0b101, 0b101, 0b101, 0b111},
	'V': {0b101, 0b101, 0b101, 0b101, 0b010},
	'W': {0b101, 0b101, 0b111, 0b111, 0b101},
	'X': {0b101, 0b101, 0b010, 0b101, 0b101},
	'Y': {0b101, 0b101, 0b010, 0b010, 0b010},
	'Z': {0b111, 0b001, 0b010, 0b100, 0b111},

	' ':  {0, 0, 0, 0, 0},
	'!':  {0b010, 0b010, 0b010, 0b000, 0b010},
	'?':  {0b110, 0b001, 0b010, 0b000, 0b010},
	'.':  {0b000, 0b000, 0b000, 0b000, 0b010},
	',':  {0b000, 0b000, 0b000, 0b010, 0b100},
	':':  {0b000, 0b010, 0b000, 0b010, 0b000},
	'-':  {0b000, 0b000, 0b111, 0b000, 0b000},
	'+':  {0b000, 0b010, 0b111, 0b010, 0b000},
	'=':  {0b000, 0b111, 0b000, 0b111, 0b000},
	'/':  {0b001, 0b001, 0b010, 0b100, 0b100},
	'\'': {0b010, 0b010, 0b000, 0b000, 0b000},
	'"':  {0b101, 0b101, 0b000, 0b000, 0b000},
	'%':  {0b101, 0b001, 0b010, 0b100, 0b101},
	'#':  {0b101, 0b111, 0b101, 0b111, 0b101},
	'(':  {0b001, 0b010, 0b010, 0b010, 0b001},
	')':  {0b100, 0b010, 0b010, 0b010, 0b100},
	'°':  {0b010, 0b101, 0b010, 0b000, 0b000},
}

// digitFont rows are 4 bits wide, most significant bit leftmost.
var digitFont = [10][DigitHeight]uint8{
	{0b0110, 0b1001, 0b1001, 0b1001, 0b1001, 0b1001, 0b0110},
	{0b0010, 0b0110, 0b0010, 0b0010, 0b0010, 0b0010, 0b0111},
	{0b0110, 0b1001, 0b0001, 0b0010, 0b0100, 0b1000, 0b1111},
	{0b1110, 0b0001, 0b0001, 0b0110, 0b0001, 0b0001, 0b1110},
	{0b0010, 0b0110, 0b1010, 0b1111, 0b0010, 0b0010, 0b0010},
	{0b1111, 0b1000, 0b1110, 0b0001, 0b0001, 0b1001, 0b0110},
	{0b0110, 0b1000, 0b1000, 0b1110, 0b1001, 0b1001, 0b0110},
	{0b1111, 0b0001, 0b0010, 0b0010, 0b0100, 0b0100, 0b0100},
	{0b0110, 0b1001, 0b1001, 0b0110, 0b1001, 0b1001, 0b0110},
	{0b0110, 0b1001, 0b1001, 0b0111, 0b0001, 0b0001, 0b0110},
}

// glyph returns the small-font bitmap for r. Letters are case-folded and
// unknown runes render as '?'.
func glyph(r rune) [SmallHeight]uint8 {
	if g, ok := smallFont[unicode.ToUpper(r)]; ok {
		return g
	}
	return smallFont['?']
}

// ColorFunc picks the color of one lit pixel.
type ColorFunc func(x, y int) RGB

// Solid returns a ColorFunc painting everything in c.
func Solid(c RGB) ColorFunc {
	return func(int, int) RGB { return c }
}

// DrawChar draws one small-font character with its top-left at x, y.
func DrawChar(f *Frame, r rune, x, y int, color ColorFunc) {
	g := glyph(r)
	for row := 0; row < SmallHeight; row++ {
		for col := 0; col < SmallWidth; col++ {
			if g[row]&(1<<uint(SmallWidth-1-col)) != 0 {
				f.SetPixel(x+col, y+row, color(x+col, y+row))
			}
		}
	}
}

// DrawDigit draws one clock digit (0-9) with its top-left at x, y.
func DrawDigit(f *Frame, d, x, y int, color ColorFunc) {
	if d < 0 || d > 9 {
		return
	}
	g := digitFont[d]
	for row := 0; row < DigitHeight; row++ {
		for col := 0; col < DigitWidth; col++ {
			if g[row]&(1<<uint(DigitWidth-1-col)) != 0 {
				f.SetPixel(x+col, y+row, color(x+col, y+row))
			}
		}
	}
}
