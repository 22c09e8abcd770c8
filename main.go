package main

import (
	"os"

	"github.com/ftahirops/sqlsentinel/cmd"
)

func main() {
	os.Exit(cmd.Run())
}
