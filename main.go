package main

import "github.com/nextlevelbuilder/teleecho/cmd"

func main() {
	cmd.Execute()
}
