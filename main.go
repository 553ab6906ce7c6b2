package main

import "github.com/nhle/fieldworker/cmd"

func main() {
	cmd.Execute()
}
