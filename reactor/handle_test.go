package reactor

import (
	"testing"
)

func TestHandle_Valid(t *testing.T) {
	for h, want := range map[Handle]bool{
		InvalidHandle: false,
		-2:            false,
		0:             true,
		1:             true,
		1 << 20:       true,
	} {
		if got := h.Valid(); got != want {
			t.Errorf("Handle(%d).Valid() = %v, want %v", h, got, want)
		}
	}
}

func TestInterest(t *testing.T) {
	for _, tc := range [...]struct {
		in    Interest
		str   string
		valid bool
	}{
		{0, "Interest(invalid)", false},
		{Read, "Read", true},
		{Write, "Write", true},
		{ReadWrite, "ReadWrite", true},
		{4, "Interest(invalid)", false},
		{Read | 4, "Interest(invalid)", false},
	} {
		if got := tc.in.String(); got != tc.str {
			t.Errorf("Interest(%d).String() = %q, want %q", tc.in, got, tc.str)
		}
		if got := tc.in.valid(); got != tc.valid {
			t.Errorf("Interest(%d).valid() = %v, want %v", tc.in, got, tc.valid)
		}
	}
}

func TestFlags_String(t *testing.T) {
	for in, want := range map[Flags]string{
		0:                   "0",
		FlagOnce:            "Once",
		FlagEdge:            "Edge",
		FlagOnce | FlagEdge: "Once|Edge",
		FlagOnce | 0x80:     "Once|invalid",
	} {
		if got := in.String(); got != want {
			t.Errorf("Flags(%d).String() = %q, want %q", in, got, want)
		}
	}
}

func TestEventKind_String(t *testing.T) {
	for in, want := range map[EventKind]string{
		0:                            "0",
		Readable:                     "Readable",
		Writable:                     "Writable",
		Closed:                       "Closed",
		Readable | Closed:            "Readable|Closed",
		Readable | Writable | Closed: "Readable|Writable|Closed",
	} {
		if got := in.String(); got != want {
			t.Errorf("EventKind(%d).String() = %q, want %q", in, got, want)
		}
	}
}
