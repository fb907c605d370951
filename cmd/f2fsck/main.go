package main

import (
	"fmt"
	"os"
)

var (
	release = "0.0.0"
	commit  = ""
)

func main() {
	commandInit()

	err := rootCmd.Execute()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
