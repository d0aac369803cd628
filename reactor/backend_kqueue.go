//go:build (darwin || freebsd) && !reactor_poll

package reactor

func newDriver(bufSize int) (driver, error) {
	d, err := newKqueueDriver(bufSize)
	if err != nil {
		return nil, err
	}
	return d, nil
}
