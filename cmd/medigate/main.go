package main

import "github.com/medicos-health/medigate/cmd/medigate/cmd"

func main() {
	cmd.Execute()
}
