// Command authdb inspects and edits the session-token store and can serve
// it over HTTP.
package main

import (
	"fmt"
	"os"
)

func main() {
	if err := newApp(os.Stdin, os.Stdout).Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, "authdb:", err)
		os.Exit(1)
	}
}
