//go:build !unix

// Stub raw-socket layer for GOOS values without a unix.* syscall surface.
// Every exported function here mirrors the platform-agnostic wrappers in
// socket_unix.go and simply reports ErrUnsupportedPlatform, so the rest of
// the module builds everywhere even though it only runs on unix.
package ioloop

import "net"

func NewTCPSocket(network string) (int, error) { return -1, ErrUnsupportedPlatform }

func NewUnixSocket() (int, error) { return -1, ErrUnsupportedPlatform }

func ConnectTCP(fd int, ip net.IP, port int) error { return ErrUnsupportedPlatform }

func ConnectUnixPath(fd int, path string) error { return ErrUnsupportedPlatform }

func BindTCP(fd int, ip net.IP, port int) error { return ErrUnsupportedPlatform }

func BindUnixPath(fd int, path string) error { return ErrUnsupportedPlatform }

func ListenFD(fd int, backlog int) error { return ErrUnsupportedPlatform }

func AcceptFD(listenFD int, network string) (int, net.Addr, error) {
	return -1, nil, ErrUnsupportedPlatform
}

func SockError(fd int) error { return ErrUnsupportedPlatform }

func SetNoDelay(fd int, enable bool) error { return ErrUnsupportedPlatform }

func ShutdownWrite(fd int) error { return ErrUnsupportedPlatform }

func LocalAddr(fd int, network string) (net.Addr, error) { return nil, ErrUnsupportedPlatform }

func ParseTCPHostPort(address string) (ip net.IP, port int, host string, err error) {
	return nil, 0, "", ErrUnsupportedPlatform
}
