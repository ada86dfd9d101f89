package main

import "github.com/pucklab/nhl-reversion/cmd"

func main() {
	cmd.Execute()
}
