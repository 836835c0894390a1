package main

import (
	"os"

	"github.com/vbp1/dbclone/internal/cli"
)

func main() {
	os.Exit(cli.ExitCode(cli.Execute(), os.Stderr))
}
