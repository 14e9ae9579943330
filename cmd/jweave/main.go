package main

import "github.com/daimatz/jweave/internal/cli"

func main() {
	cli.Execute()
}
