package main

import "chorus/cmd"

func main() {
	cmd.Execute()
}
