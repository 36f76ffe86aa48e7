//go:build !linux
// +build !linux

package reset

func Open(chip string, offset int) (Line, error) {
	return nil, ErrUnsupported
}
