package buttons

// Debouncer accepts a level change only after it has been seen on N
// consecutive samples. It holds nothing but the stable levels and one
// counter per button.
type Debouncer struct {
	samples int
	stable  Levels
	counts  [numButtons]int
}

// NewDebouncer creates a Debouncer requiring n stable samples (minimum 1).
func NewDebouncer(n int) *Debouncer {
	if n < 1 {
		n = 1
	}
	return &Debouncer{samples: n}
}

// Update feeds one raw sample and returns the buttons whose press or
// release was accepted by this sample.
func (d *Debouncer) Update(raw Levels) (pressed, released Levels) {
	for b := Button(0); b < numButtons; b++ {
		want := raw.Pressed(b)
		if want == d.stable.Pressed(b) {
			d.counts[b] = 0
			continue
		}

		d.counts[b]++
		if d.counts[b] < d.samples {
			continue
		}

		d.counts[b] = 0
		d.stable ^= 1 << uint(b)
		if want {
			pressed = pressed.With(b)
		} else {
			released = released.With(b)
		}
	}
	return pressed, released
}

// Stable returns the debounced levels.
func (d *Debouncer) Stable() Levels {
	return d.stable
}
