package main

import "github.com/livp123/dxwatch/cmd/dxwatch/commands"

func main() {
	commands.Execute()
}
