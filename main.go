// The main package for the pricewatch executable.
package main

import (
	"github.com/pharmintel/pricewatch/cmd"
)

func main() {
	cmd.Execute()
}
