// Command vmboot runs the serial bootloader emulator and flashing tool.
package main

import "github.com/moffa90/go-vmboot/internal/cli"

func main() {
	cli.Execute()
}
