//go:build unix && !linux

package ghost

import "golang.org/x/sys/unix"

// Non-Linux unixes overcommit PROT_NONE reservations without MAP_NORESERVE.
const mapFlags = unix.MAP_PRIVATE | unix.MAP_ANON
