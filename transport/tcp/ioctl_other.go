//go:build !linux

package tcp

import "golang.org/x/sys/unix"

// readable byte count in the receive queue
const ioctlReadable = unix.FIONREAD
