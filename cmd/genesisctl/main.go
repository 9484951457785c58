package main

import (
	"os"

	"genesis/internal/cli"
)

func main() {
	os.Exit(cli.Execute())
}
