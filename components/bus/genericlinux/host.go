// Package genericlinux provides bus backends for Linux boards through periph.io: GPIO lines
// for the usi engine and a transport over the kernel I2C adapter.
package genericlinux

import (
	"sync"

	"github.com/pkg/errors"
	"periph.io/x/host/v3"
)

var (
	hostOnce sync.Once
	hostErr  error
)

// Init loads the periph.io host drivers. Only the first call does any work; later calls
// return the first result.
func Init() error {
	hostOnce.Do(func() {
		if _, err := host.Init(); err != nil {
			hostErr = errors.Wrap(err, "initializing periph host drivers")
		}
	})
	return hostErr
}
