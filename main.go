package main

import (
	"os"

	"github.com/joho/godotenv"
	"github.com/khrees2412/waterworks/cmd"
)

func main() {
	// A missing .env is fine; keys may come from the real environment
	_ = godotenv.Load()
	os.Exit(cmd.Execute())
}
