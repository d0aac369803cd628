//go:build linux

package reactor

func testBackends() []testBackend {
	return []testBackend{
		{name: "epoll", newDriver: func(bufSize int) (driver, error) { return newEpollDriver(bufSize) }},
		{name: "poll", newDriver: func(bufSize int) (driver, error) { return newPollDriver(bufSize) }},
	}
}
