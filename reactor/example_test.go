//go:build aix || darwin || dragonfly || freebsd || linux || netbsd || openbsd || solaris

package reactor_test

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/joeycumines/go-reactor/reactor"
	"github.com/joeycumines/logiface"
	"github.com/joeycumines/stumpy"
	"golang.org/x/sys/unix"
)

func Example() {
	r, err := reactor.New()
	if err != nil {
		panic(err)
	}
	defer r.Close()

	fds, err := unix.Socketpair(unix.AF_UNIX, unix.SOCK_STREAM, 0)
	if err != nil {
		panic(err)
	}
	defer unix.Close(fds[0])
	defer unix.Close(fds[1])
	if err := unix.SetNonblock(fds[0], true); err != nil {
		panic(err)
	}

	h := reactor.Handle(fds[0])
	if err := r.Set(h, reactor.Read, reactor.FlagOnce, func(ev reactor.EventKind) {
		var buf [64]byte
		n, _ := unix.Read(fds[0], buf[:])
		fmt.Printf("%v: %s\n", ev, buf[:n])
	}); err != nil {
		panic(err)
	}

	if _, err := unix.Write(fds[1], []byte("hello")); err != nil {
		panic(err)
	}

	status, err := r.Poll(time.Second)
	fmt.Println(status, err)

	//output:
	//Readable: hello
	//Progressed <nil>
}

func ExampleReactor_SetTimer() {
	r, err := reactor.New()
	if err != nil {
		panic(err)
	}
	defer r.Close()

	var (
		tick  reactor.Timer
		ticks int
	)
	tick.ArmInterval(5 * time.Millisecond)
	if err := r.SetTimer(&tick, func() {
		ticks++
		fmt.Println("tick", ticks)
		if ticks == 3 {
			r.Stop()
		}
	}); err != nil {
		panic(err)
	}

	fmt.Println(r.Run(context.Background()))

	//output:
	//tick 1
	//tick 2
	//tick 3
	//<nil>
}

func ExampleWithLogger() {
	logger := stumpy.L.New(
		stumpy.L.WithStumpy(stumpy.WithTimeField(``)),
		stumpy.L.WithWriter(logiface.WriterFunc[*stumpy.Event](func(e *stumpy.Event) error {
			_, err := fmt.Fprintf(os.Stderr, "%s\n", e.Bytes())
			return err
		})),
		stumpy.L.WithLevel(logiface.LevelDebug),
	)

	r, err := reactor.New(reactor.WithLogger(logger.Logger()), reactor.WithMetrics(true))
	if err != nil {
		panic(err)
	}
	defer r.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	fmt.Println(r.Run(ctx))

	//output:
	//context deadline exceeded
}
