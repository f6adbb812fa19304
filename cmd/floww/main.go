package main

import "github.com/cigrirepo/Floww/internal/cli"

func main() {
	cli.Execute()
}
