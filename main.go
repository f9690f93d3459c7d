// The main package for the catalog-scraper executable.
package main

import (
	"github.com/JakeFAU/catalog-scraper/cmd"
)

// main defers all execution to the Cobra CLI.
func main() {
	cmd.Execute()
}
