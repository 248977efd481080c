package main

import (
	"os"

	"github.com/phonescreen-ai/phonescreen/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
