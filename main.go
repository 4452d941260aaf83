package main

import "github.com/mkoivisto/alexandria/cmd"

// execute is swapped out in tests.
var execute = cmd.Execute

func main() {
	execute()
}
