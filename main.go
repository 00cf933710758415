package main

import "github.com/atendezap/atendezap/cmd"

func main() {
	cmd.Execute()
}
