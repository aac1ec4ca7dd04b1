package main

import (
	"os"

	"github.com/listnote/listnote-core/internal/cli"
)

var version = "dev"

func main() {
	root := cli.NewRootCmd(cli.Options{})
	root.Version = version
	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}
