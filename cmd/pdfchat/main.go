package main

import "github.com/fyerfyer/pdf-chat/internal/cli"

func main() {
	cli.Execute()
}
