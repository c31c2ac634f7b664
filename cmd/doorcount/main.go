package main

import (
	// Collector summaries load IANA zones; embed them for minimal images.
	_ "time/tzdata"

	"github.com/MeKo-Tech/doorcount/cmd/doorcount/cmd"
)

func main() {
	cmd.Execute()
}
