package main

import (
	"os"

	"VelRegistry/cmd"
)

func main() {
	os.Exit(cmd.Execute())
}
