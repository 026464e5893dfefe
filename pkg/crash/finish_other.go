//go:build !unix

package crash

import "errors"

func regenerate() error {
	return errors.New("core dumps not supported")
}
