package main

import "github.com/pfrederiksen/drf-pp/internal/cli"

func main() {
	cli.Execute()
}
