package buttons

import (
	"fmt"

	gpiod "github.com/warthog618/go-gpiocdev"

	"github.com/domneedham/galactic-unicorn-go/internal/infrastructure/config"
)

// GPIOSource reads the buttons from a GPIO character device. The buttons are
// active low with pull-ups, as wired on the Galactic Unicorn.
type GPIOSource struct {
	chip    *gpiod.Chip
	lines   *gpiod.Lines
	buttons []Button
	values  []int
}

// NewGPIOSource requests the configured lines as inputs.
func NewGPIOSource(chipName string, layout config.ButtonLines) (*GPIOSource, error) {
	chip, err := gpiod.NewChip(chipName)
	if err != nil {
		return nil, fmt.Errorf("opening %s: %w", chipName, err)
	}

	buttons, offsets := lineMap(layout)
	lines, err := chip.RequestLines(offsets, gpiod.AsInput, gpiod.WithPullUp, gpiod.WithConsumer("unicorn-buttons"))
	if err != nil {
		chip.Close()
		return nil, fmt.Errorf("requesting button lines %v: %w", offsets, err)
	}

	return &GPIOSource{
		chip:    chip,
		lines:   lines,
		buttons: buttons,
		values:  make([]int, len(offsets)),
	}, nil
}

func lineMap(layout config.ButtonLines) ([]Button, []int) {
	buttons := []Button{ButtonA, ButtonB, ButtonC, ButtonD, ButtonSleep, ButtonBrightnessUp, ButtonBrightnessDown}
	offsets := []int{layout.A, layout.B, layout.C, layout.D, layout.Sleep, layout.BrightnessUp, layout.BrightnessDown}
	return buttons, offsets
}

// Sample reads every line once.
func (s *GPIOSource) Sample() (Levels, error) {
	if err := s.lines.Values(s.values); err != nil {
		return 0, err
	}
	return levelsFromValues(s.buttons, s.values), nil
}

func levelsFromValues(buttons []Button, values []int) Levels {
	var l Levels
	for i, v := range values {
		if v == 0 {
			l = l.With(buttons[i])
		}
	}
	return l
}

// Close releases the lines and the chip.
func (s *GPIOSource) Close() error {
	lerr := s.lines.Close()
	cerr := s.chip.Close()
	if lerr != nil {
		return lerr
	}
	return cerr
}
