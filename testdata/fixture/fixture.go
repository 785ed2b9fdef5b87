// Command fixture is a small binary that tests build on the fly when they
// need an ELF image carrying a symbol table and DWARF info. Test binaries
// themselves are linked without either, so resolution tests cannot inspect
// themselves and use this program instead.
package main

import (
	"fmt"
	"os"
)

//go:noinline
func fixtureTarget(x int) int {
	return x*3 + 1
}

// fixtureData is initialized so it lands in the data segment rather than
// bss, keeping its address range file-backed.
var fixtureData = [64]byte{1: 1}

func main() {
	fmt.Fprintln(os.Stdout, fixtureTarget(2), fixtureData[1])
}
