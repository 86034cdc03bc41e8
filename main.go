package main

import "github.com/kozaktomas/facemark/cmd"

func main() {
	cmd.Execute()
}
