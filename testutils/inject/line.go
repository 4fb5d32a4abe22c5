package inject

import (
	"go.viam.com/tinywire/usi"
)

// Line is an injected usi.Line.
type Line struct {
	usi.Line
	SetFunc func(high bool) error
	GetFunc func() (bool, error)
}

// Set calls the injected Set or the real version.
func (l *Line) Set(high bool) error {
	if l.SetFunc == nil {
		return l.Line.Set(high)
	}
	return l.SetFunc(high)
}

// Get calls the injected Get or the real version.
func (l *Line) Get() (bool, error) {
	if l.GetFunc == nil {
		return l.Line.Get()
	}
	return l.GetFunc()
}
