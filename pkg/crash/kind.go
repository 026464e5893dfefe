package crash

// Kind is the classification of a fault or signal.
type Kind uint8

const (
	Unknown Kind = iota
	GPF
	StackOverflow
	Abort
	Quit
	CtrlBreak
	CtrlC
	Breakpoint
	Arithmetic
)

var kindNames = [...]string{
	Unknown:       "unknown signal",
	GPF:           "general protection fault",
	StackOverflow: "stack overflow",
	Abort:         "abort",
	Quit:          "quit",
	CtrlBreak:     "ctrl-break",
	CtrlC:         "ctrl-c",
	Breakpoint:    "breakpoint",
	Arithmetic:    "arithmetic exception",
}

func (k Kind) String() string {
	if int(k) < len(kindNames) {
		return kindNames[k]
	}
	return kindNames[Unknown]
}

// valid returns true if callbacks can be registered for k.
func (k Kind) valid() bool {
	return k > Unknown && k <= Arithmetic
}
