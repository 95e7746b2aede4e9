package main

import "github.com/canopy-network/vsmt/cmd/cli"

func main() {
	cli.Execute()
}
