package main

import "github.com/bugout-dev/discord-bots/cmd"

func main() {
	cmd.Execute()
}
