package main

import (
	"os"

	"lexrag/internal/cli"
)

func main() {
	os.Exit(cli.Execute())
}
