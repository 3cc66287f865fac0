// Build with: go build -o chip-et-embedded ./cmd/chip-et-embedded
// Every ROM under roms/ is compiled into the binary, together with its
// .txt and .json sidecars.
package main

import (
	"embed"
	"fmt"
	"os"

	"github.com/zurustar/chip-et/pkg/app"
)

//go:embed roms
var embeddedROMs embed.FS

func main() {
	application := app.New(embeddedROMs)
	if err := application.Run(os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
