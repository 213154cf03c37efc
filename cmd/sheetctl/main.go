package main

import (
	"os"

	"github.com/wrkportal/sheetengine/internal/cli"
)

func main() {
	os.Exit(cli.Execute())
}
