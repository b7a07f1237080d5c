// Command keyframesctl inspects export descriptors offline: the scene at a
// time, the items active at a time, a frame-by-frame playback trace and the
// EDL of the timeline.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
)

func main() {
	cmd := newRootCommand()
	if err := cmd.Execute(); err != nil {
		if !errors.Is(err, context.Canceled) {
			fmt.Fprintln(os.Stderr, err)
		}
		os.Exit(1)
	}
}
