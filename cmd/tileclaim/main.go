package main

import "github.com/mcoot/tileclaim/internal/cli"

func main() {
	cli.Execute()
}
