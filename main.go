package main

import (
	"os"

	"github.com/ibeckermayer/replyscout/internal/cli"
)

func main() {
	os.Exit(cli.Execute())
}
