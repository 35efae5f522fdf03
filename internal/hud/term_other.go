//go:build !unix

package hud

func terminalWidth(uintptr) (int, bool) { return 0, false }
