package main

import (
	"os"

	"github.com/pmkol/quickdns/coremain"
)

func main() {
	if err := coremain.Run(); err != nil {
		os.Exit(1)
	}
}
