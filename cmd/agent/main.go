package main

import "edgeagent/internal/cli"

func main() {
	cli.Execute()
}
