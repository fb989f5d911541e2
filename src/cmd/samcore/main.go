package main

import (
	"github.com/samnetworks/samcore/src/cmd/samcore/command"
)

func main() {
	command.Execute()
}
