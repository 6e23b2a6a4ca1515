package main

import "github.com/MrEthical07/sessionfetch/cmd/sessionfetch/cmd"

func main() {
	cmd.Execute()
}
