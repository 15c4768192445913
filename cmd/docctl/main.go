package main

import (
	"fmt"
	"os"

	"docintake/cmd/docctl/commands"

	"github.com/joho/godotenv"
)

func main() {
	_ = godotenv.Load()

	if err := commands.NewRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
