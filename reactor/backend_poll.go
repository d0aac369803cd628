//go:build ((darwin || freebsd || linux) && reactor_poll) || aix || dragonfly || netbsd || openbsd || solaris

package reactor

func newDriver(bufSize int) (driver, error) {
	d, err := newPollDriver(bufSize)
	if err != nil {
		return nil, err
	}
	return d, nil
}
