package main

import (
	"fintself/cmd/fintself/commands"
	"fintself/lib/osutil"
)

func main() {
	commands.ExecuteContext(osutil.SignalContext())
}
