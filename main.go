// The main package for the shotapi executable.
package main

import (
	"github.com/JakeFAU/shotapi/cmd"
)

func main() {
	cmd.Execute()
}
