package main

import "github.com/stitchkit/stitch/cmd"

func main() {
	cmd.Execute()
}
