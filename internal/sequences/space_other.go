//go:build !linux && !darwin && !freebsd

package sequences

import "errors"

func freeSpace(string) (uint64, error) {
	return 0, errors.New("free space probe unsupported on this platform")
}
