package main

import (
	"github.com/3kwa/goingnats/cmd"
)

func main() {
	cmd.Execute()
}
