//go:build windows

package main

import "golang.org/x/sys/windows"

// raisePriority moves the process to the high priority class, falling back to above
// normal. REALTIME is never used since it can starve the rest of the system.
func raisePriority() error {
	proc := windows.CurrentProcess()
	if err := windows.SetPriorityClass(proc, windows.HIGH_PRIORITY_CLASS); err != nil {
		return windows.SetPriorityClass(proc, windows.ABOVE_NORMAL_PRIORITY_CLASS)
	}
	return nil
}
