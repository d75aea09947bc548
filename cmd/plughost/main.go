package main

import "github.com/shaban/plughost/internal/cli"

func main() {
	cli.Execute()
}
