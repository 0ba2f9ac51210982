// Package main is the single-binary entrypoint for riemann.
// The same binary runs the coordinator (`riemann run`) and workers (`riemann worker`).
package main

import "github.com/tutu-network/riemann/internal/cli"

// version is set at build time via -ldflags.
var version = "dev"

func main() {
	cli.Execute(version)
}
