//go:build !unix

package crash

func platformListeners() []FlagListener {
	return nil
}
