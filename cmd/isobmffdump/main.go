// Command isobmffdump inspects and remuxes ISO Base Media (MP4) files.
package main

import (
	"fmt"
	"os"

	"github.com/gomp4/isobmff/cmd/isobmffdump/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
