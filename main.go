package main

import "svcfwd/cmd"

func main() {
	cmd.Execute()
}
