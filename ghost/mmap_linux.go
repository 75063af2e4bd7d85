//go:build linux

package ghost

import "golang.org/x/sys/unix"

// MAP_NORESERVE keeps a terabyte reservation from counting against commit
// limits; the pages cost nothing until the guard commits them.
const mapFlags = unix.MAP_PRIVATE | unix.MAP_ANON | unix.MAP_NORESERVE
