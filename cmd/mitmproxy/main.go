package main

import "github.com/fnzv/mitmproxy/cmd/mitmproxy/cmd"

func main() {
	cmd.Execute()
}
