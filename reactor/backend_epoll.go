//go:build linux && !reactor_poll

package reactor

func newDriver(bufSize int) (driver, error) {
	d, err := newEpollDriver(bufSize)
	if err != nil {
		return nil, err
	}
	return d, nil
}
