// Command callmonitor serves call quality monitoring over HTTP or runs a
// local simulation of monitored calls.
package main

import (
	"os"
)

func main() {
	if err := NewRootCommand().Execute(); err != nil {
		os.Exit(1)
	}
}
