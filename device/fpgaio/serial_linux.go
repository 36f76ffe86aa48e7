//go:build linux

package fpgaio

import (
	"errors"
	"fmt"

	"golang.org/x/sys/unix"
)

var baudRates = map[int]uint32{
	115200:  unix.B115200,
	230400:  unix.B230400,
	460800:  unix.B460800,
	921600:  unix.B921600,
	1000000: unix.B1000000,
	2000000: unix.B2000000,
	3000000: unix.B3000000,
}

type serialPort struct {
	fd   int
	path string
}

// OpenSerial opens a tty in raw mode with a one-tick read timeout so a
// read with nothing pending returns (0, nil) after a tenth of a second.
func OpenSerial(path string, baud int, purge bool) (Port, error) {
	speed, ok := baudRates[baud]
	if !ok {
		return nil, fmt.Errorf("%s: unsupported baud %d", path, baud)
	}

	fd, err := unix.Open(path, unix.O_RDWR|unix.O_NOCTTY|unix.O_CLOEXEC, 0)
	if err != nil {
		return nil, fmt.Errorf("error accessing device %v: %w", path, err)
	}

	t, err := unix.IoctlGetTermios(fd, unix.TCGETS)
	if err != nil {
		unix.Close(fd)
		return nil, fmt.Errorf("%s: get termios: %w", path, err)
	}

	t.Iflag &^= unix.IGNBRK | unix.BRKINT | unix.PARMRK | unix.ISTRIP | unix.INLCR | unix.IGNCR | unix.ICRNL | unix.IXON | unix.IXOFF | unix.IXANY
	t.Oflag &^= unix.OPOST
	t.Lflag &^= unix.ECHO | unix.ECHONL | unix.ICANON | unix.ISIG | unix.IEXTEN
	t.Cflag &^= unix.CSIZE | unix.PARENB | unix.CSTOPB | unix.CRTSCTS | unix.CBAUD
	t.Cflag |= unix.CS8 | unix.CREAD | unix.CLOCAL | speed
	t.Ispeed = speed
	t.Ospeed = speed
	t.Cc[unix.VMIN] = 0
	t.Cc[unix.VTIME] = 1

	if err := unix.IoctlSetTermios(fd, unix.TCSETS, t); err != nil {
		unix.Close(fd)
		return nil, fmt.Errorf("%s: set termios: %w", path, err)
	}

	if purge {
		if err := unix.IoctlSetInt(fd, unix.TCFLSH, unix.TCIOFLUSH); err != nil {
			unix.Close(fd)
			return nil, fmt.Errorf("%s: flush: %w", path, err)
		}
	}

	return &serialPort{fd: fd, path: path}, nil
}

func (my *serialPort) Read(p []byte) (int, error) {
	n, err := unix.Read(my.fd, p)
	if err != nil {
		if errors.Is(err, unix.EINTR) || errors.Is(err, unix.EAGAIN) {
			return 0, nil
		}
		return n, err
	}
	return n, nil
}

func (my *serialPort) Write(p []byte) (int, error) {
	return unix.Write(my.fd, p)
}

func (my *serialPort) Close() error {
	if my.fd < 0 {
		return nil
	}
	err := unix.Close(my.fd)
	my.fd = -1
	return err
}
