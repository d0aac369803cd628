//go:build darwin || freebsd

package reactor

func testBackends() []testBackend {
	return []testBackend{
		{name: "kqueue", newDriver: func(bufSize int) (driver, error) { return newKqueueDriver(bufSize) }},
		{name: "poll", newDriver: func(bufSize int) (driver, error) { return newPollDriver(bufSize) }},
	}
}
