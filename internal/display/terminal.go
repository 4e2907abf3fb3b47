package display

import (
	"bufio"
	"bytes"
	"fmt"
	"io"
	"os"
	"sync"

	"golang.org/x/term"

	"github.com/domneedham/galactic-unicorn-go/internal/render"
)

// TerminalPanel draws frames into an ANSI truecolour terminal, two columns
// per pixel so the panel keeps its aspect ratio.
type TerminalPanel struct {
	mu      sync.Mutex
	w       *bufio.Writer
	last    []byte
	tty     bool
	started bool
}

// NewTerminalPanel creates a panel writing to out. When out is a terminal the
// panel repaints in place; otherwise frames are appended.
func NewTerminalPanel(out io.Writer) *TerminalPanel {
	tty := false
	if f, ok := out.(*os.File); ok {
		tty = term.IsTerminal(int(f.Fd()))
	}
	return &TerminalPanel{w: bufio.NewWriter(out), tty: tty}
}

// Show draws f if it differs from the previous frame.
func (p *TerminalPanel) Show(f *render.Frame) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if bytes.Equal(p.last, f.Pixels) {
		return nil
	}
	p.last = append(p.last[:0], f.Pixels...)

	if p.tty {
		if !p.started {
			p.w.WriteString("\x1b[?25l\x1b[2J")
			p.started = true
		}
		p.w.WriteString("\x1b[H")
	}
	for y := 0; y < f.Height; y++ {
		for x := 0; x < f.Width; x++ {
			c := f.At(x, y)
			fmt.Fprintf(p.w, "\x1b[48;2;%d;%d;%dm  ", c.R, c.G, c.B)
		}
		p.w.WriteString("\x1b[0m\r\n")
	}
	return p.w.Flush()
}

// Close restores the cursor.
func (p *TerminalPanel) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.tty && p.started {
		p.w.WriteString("\x1b[0m\x1b[?25h")
	}
	return p.w.Flush()
}
