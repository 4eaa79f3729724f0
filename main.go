// The main package for the static-mirror executable.
package main

import (
	"github.com/JakeFAU/static-mirror/cmd"
)

func main() {
	cmd.Execute()
}
