package main

import (
	"os"

	"github.com/fahmaliyi/kapa/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		os.Exit(1)
	}
}
