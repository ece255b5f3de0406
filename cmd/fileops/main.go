package main

import (
	"os"

	"github.com/vulntor/fileops/cmd/fileops/commands"
)

func main() {
	os.Exit(commands.Execute())
}
