//go:build !unix

package transport

import "syscall"

// SO_REUSEADDR has different semantics on Windows, leave it unset there
func reuseAddrControl(network, address string, c syscall.RawConn) error {
	return nil
}
