//go:build !windows

package main

// raisePriority is a no-op outside Windows; use nice(1) instead:
//
//	nice -n -20 ./keyhunter ...
func raisePriority() error { return nil }
