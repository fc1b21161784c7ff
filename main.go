package main

import "github.com/Digital-Shane/media-sidecar/internal/cmd"

func main() {
	cmd.Execute()
}
