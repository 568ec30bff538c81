package main

import "github.com/modelhub-io/modelhub/cmd"

func main() {
	cmd.Execute()
}
