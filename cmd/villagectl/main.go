package main

import (
	"fmt"
	"os"

	"village-assist/internal/app"
)

func main() {
	if err := newRootCmd(app.Build).Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}
