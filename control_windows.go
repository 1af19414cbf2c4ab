//go:build windows
// +build windows

package adoftp

import (
	"syscall"

	"golang.org/x/sys/windows"
)

// Control defines the function to use as dialer or listener Control to reuse
// the same port/address. SO_REUSEPORT doesn't exist here, SO_REUSEADDR does
func Control(network, address string, c syscall.RawConn) error {
	var errSetOpts error

	err := c.Control(func(fd uintptr) {
		errSetOpts = windows.SetsockoptInt(windows.Handle(fd), windows.SOL_SOCKET, windows.SO_REUSEADDR, 1)
	})
	if err != nil {
		return err
	}

	return errSetOpts
}
