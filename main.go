package main

import "github.com/kris-hansen/stepwise/cmd"

func main() {
	cmd.Execute()
}
