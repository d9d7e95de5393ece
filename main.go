package main

import "github.com/cmericli/claude-remote/cmd"

func main() {
	cmd.Execute()
}
