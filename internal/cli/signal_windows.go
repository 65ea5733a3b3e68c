//go:build windows

package cli

import "os"

// notifyUSR1 returns a channel that never receives; Windows has no SIGUSR1.
func notifyUSR1() chan os.Signal {
	return make(chan os.Signal)
}
