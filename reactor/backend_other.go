//go:build !aix && !darwin && !dragonfly && !freebsd && !linux && !netbsd && !openbsd && !solaris

package reactor

func newDriver(int) (driver, error) {
	return nil, ErrUnsupportedPlatform
}
