//go:build aix || dragonfly || netbsd || openbsd || solaris

package reactor

func testBackends() []testBackend {
	return []testBackend{
		{name: "poll", newDriver: func(bufSize int) (driver, error) { return newPollDriver(bufSize) }},
	}
}
