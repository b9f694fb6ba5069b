package main

import "github.com/smart-pulse-M1-GI/frontend/internal/cli"

func main() {
	cli.Execute()
}
