//go:build linux || darwin || freebsd || netbsd || openbsd

package asyncio

import (
	"net"
	"syscall"
)

// getFD extracts the underlying file descriptor of a net.Conn for use with
// raw kqueue/epoll registration. *net.TCPConn (the only conn type the
// engine ever registers) implements syscall.Conn.
func getFD(conn net.Conn) (int, error) {
	sc, ok := conn.(syscall.Conn)
	if !ok {
		return -1, errUnsupportedConn
	}
	raw, err := sc.SyscallConn()
	if err != nil {
		return -1, err
	}
	var fd int
	ctrlErr := raw.Control(func(f uintptr) { fd = int(f) })
	if ctrlErr != nil {
		return -1, ctrlErr
	}
	return fd, nil
}
