package main

import "github.com/mchmarny/gridpulse/pkg/cli"

func main() {
	cli.Execute()
}
