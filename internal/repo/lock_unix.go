//go:build !windows

package repo

import (
	"os"
	"runtime"
	"strconv"
	"syscall"
)

// processAlive checks whether a pid belongs to a live process. Linux gets a
// /proc check; other Unixes fall back to signal 0.
func processAlive(pid int) bool {
	if runtime.GOOS == "linux" {
		_, err := os.Stat("/proc/" + strconv.Itoa(pid) + "/stat")
		return err == nil
	}
	return syscall.Kill(pid, 0) == nil
}

func flockExclusive(f *os.File) error {
	return syscall.Flock(int(f.Fd()), syscall.LOCK_EX|syscall.LOCK_NB)
}

func funlock(f *os.File) {
	_ = syscall.Flock(int(f.Fd()), syscall.LOCK_UN)
}
