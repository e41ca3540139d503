// Command aperture generates a CLI at runtime from registered OpenAPI 3.x
// specifications and executes API operations through it.
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/aperture-cli/aperture/aperr"
)

// version is stamped by the release build.
var version = "0.4.0"

func main() {
	app := newApp(version, os.Stdout, os.Stderr)
	if err := app.Execute(context.Background(), os.Args[1:]); err != nil {
		if app.jsonErrors() {
			fmt.Fprintln(os.Stderr, string(aperr.ToJSON(err)))
		} else {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		}
		os.Exit(1)
	}
}
