package main

import "github.com/cppla/newspaper/cli"

func main() {
	cli.Execute()
}
