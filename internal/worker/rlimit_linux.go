//go:build linux

package worker

import "golang.org/x/sys/unix"

// limitAddressSpace caps the virtual address space of the current process.
// The hard limit is never raised.
func limitAddressSpace(limit uint64) error {
	var current unix.Rlimit
	if err := unix.Getrlimit(unix.RLIMIT_AS, &current); err != nil {
		return err
	}
	if current.Max != unix.RLIM_INFINITY && current.Max < limit {
		limit = current.Max
	}
	return unix.Setrlimit(unix.RLIMIT_AS, &unix.Rlimit{Cur: limit, Max: limit})
}
