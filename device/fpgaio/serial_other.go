//go:build !linux

package fpgaio

import (
	"fmt"
	"runtime"
)

func OpenSerial(path string, baud int, purge bool) (Port, error) {
	return nil, fmt.Errorf("%s: serial ports are not supported on %s", path, runtime.GOOS)
}
