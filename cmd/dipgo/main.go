package main

import (
	"os"

	"github.com/jessevdk/go-flags"
)

type Options struct {
	Run  RunCommand  `command:"run" description:"Run the dip coater control loop"`
	Info InfoCommand `command:"info" description:"Print the derived machine limits and serial ports"`
}

var opts Options
var parser = flags.NewParser(&opts, flags.Default)

func main() {
	parser.LongDescription = "DipGo - dip coater motion controller for Raspberry Pi"

	_, err := parser.Parse()
	if err != nil {
		if flagsErr, ok := err.(*flags.Error); ok {
			if flagsErr.Type == flags.ErrHelp {
				os.Exit(0)
			}
		}
		os.Exit(1)
	}
}
