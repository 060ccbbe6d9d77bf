package logger

import "os"

// isTerminal reports whether f is attached to a character device. Color
// output is only enabled for interactive terminals, never for pipes or
// log files.
func isTerminal(f *os.File) bool {
	info, err := f.Stat()
	if err != nil {
		return false
	}
	return info.Mode()&os.ModeCharDevice != 0
}
