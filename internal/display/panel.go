package display

import (
	"errors"

	"github.com/domneedham/galactic-unicorn-go/internal/render"
)

// Panel is the frame sink owned by the arbiter. Show must not retain f.
type Panel interface {
	Show(f *render.Frame) error
	Close() error
}

// NullPanel discards frames.
type NullPanel struct{}

func (NullPanel) Show(*render.Frame) error { return nil }
func (NullPanel) Close() error             { return nil }

// MultiPanel fans each frame out to several panels.
type MultiPanel []Panel

// Show pushes f to every panel and joins their errors.
func (m MultiPanel) Show(f *render.Frame) error {
	var errs []error
	for _, p := range m {
		if err := p.Show(f); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Close closes every panel and joins their errors.
func (m MultiPanel) Close() error {
	var errs []error
	for _, p := range m {
		if err := p.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
