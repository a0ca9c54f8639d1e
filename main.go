package main

import "github.com/kyralis/chatrelay-go/cmd"

func main() {
	cmd.Execute()
}
