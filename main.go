package main

import "github.com/kiesman99/posterize/cmd"

func main() {
	cmd.Execute()
}
