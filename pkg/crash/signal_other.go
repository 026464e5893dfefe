//go:build !unix

package crash

import "os"

func asyncSignal(k Kind) os.Signal {
	if k == CtrlC || k == CtrlBreak {
		return os.Interrupt
	}
	return nil
}

func kindOfSignal(sig os.Signal) Kind {
	if sig == os.Interrupt {
		return CtrlC
	}
	return Unknown
}
