package buttons

import (
	"errors"
	"io"
	"os"
	"sync"
	"time"

	"golang.org/x/term"
)

// ErrNotTerminal is returned when the keyboard source has no terminal to read.
var ErrNotTerminal = errors.New("buttons: stdin is not a terminal")

// keyButtons maps keys to buttons for desktop runs.
var keyButtons = map[byte]Button{
	'a': ButtonA,
	'b': ButtonB,
	'c': ButtonC,
	'd': ButtonD,
	'z': ButtonSleep,
	'+': ButtonBrightnessUp,
	'=': ButtonBrightnessUp,
	'-': ButtonBrightnessDown,
}

// keyReader is the one consumer of stdin for the life of the process. Keys
// go to the attached source; with none attached they are dropped.
type keyReader struct {
	mu     sync.Mutex
	target *KeyboardSource
}

var (
	stdinOnce sync.Once
	stdinKeys = &keyReader{}
)

func (kr *keyReader) attach(k *KeyboardSource) {
	kr.mu.Lock()
	kr.target = k
	kr.mu.Unlock()
}

func (kr *keyReader) detach(k *KeyboardSource) {
	kr.mu.Lock()
	if kr.target == k {
		kr.target = nil
	}
	kr.mu.Unlock()
}

func (kr *keyReader) run(r io.Reader) {
	buf := make([]byte, 16)
	for {
		n, err := r.Read(buf)
		for _, c := range buf[:n] {
			if c == ctrlC {
				interruptSelf()
				continue
			}
			kr.deliver(c)
		}
		if err != nil {
			return
		}
	}
}

func (kr *keyReader) deliver(key byte) {
	kr.mu.Lock()
	k := kr.target
	kr.mu.Unlock()
	if k != nil {
		k.press(key)
	}
}

// KeyboardSource emulates the buttons from key presses on a raw terminal.
// A key press holds its button down for hold, long enough to pass the debouncer.
// Sources created across device restarts share one stdin reader; only the
// most recently opened, unclosed source receives keys.
type KeyboardSource struct {
	fd       int
	oldState *term.State
	hold     time.Duration
	keys     *keyReader

	mu       sync.Mutex
	deadline [numButtons]time.Time
	now      func() time.Time
}

// NewKeyboardSource puts stdin in raw mode and starts reading keys.
func NewKeyboardSource(hold time.Duration) (*KeyboardSource, error) {
	fd := int(os.Stdin.Fd())
	if !term.IsTerminal(fd) {
		return nil, ErrNotTerminal
	}
	old, err := term.MakeRaw(fd)
	if err != nil {
		return nil, err
	}

	k := &KeyboardSource{fd: fd, oldState: old, hold: hold, keys: stdinKeys, now: time.Now}
	stdinKeys.attach(k)
	stdinOnce.Do(func() { go stdinKeys.run(os.Stdin) })
	return k, nil
}

func (k *KeyboardSource) press(key byte) {
	b, ok := keyButtons[key]
	if !ok {
		return
	}
	k.mu.Lock()
	k.deadline[b] = k.now().Add(k.hold)
	k.mu.Unlock()
}

// Raw mode disables the terminal's own signal keys.
const ctrlC = 0x03

func interruptSelf() {
	if p, err := os.FindProcess(os.Getpid()); err == nil {
		_ = p.Signal(os.Interrupt)
	}
}

// Sample reports every button whose key was pressed within the hold window.
func (k *KeyboardSource) Sample() (Levels, error) {
	k.mu.Lock()
	defer k.mu.Unlock()

	now := k.now()
	var l Levels
	for b, d := range k.deadline {
		if now.Before(d) {
			l = l.With(Button(b))
		}
	}
	return l, nil
}

// Close stops key delivery to k and restores the terminal.
func (k *KeyboardSource) Close() error {
	if k.keys != nil {
		k.keys.detach(k)
	}
	if k.oldState == nil {
		return nil
	}
	return term.Restore(k.fd, k.oldState)
}
