package main

import "github.com/quarrydb/quarry/internal/cli"

func main() {
	cli.Execute()
}
