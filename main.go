package main

import "github.com/jmehdipour/fintrack/cmd"

func main() {
	cmd.Execute()
}
