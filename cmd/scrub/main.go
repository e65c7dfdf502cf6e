package main

import (
	"os"

	"secure-scrub/internal/bootstrap"
)

func main() {
	os.Exit(bootstrap.Execute())
}
