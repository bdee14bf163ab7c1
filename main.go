package main

import "github.com/gorallel/gorallel/cmd"

func main() {
	cmd.Execute()
}
