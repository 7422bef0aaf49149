package main

import "github.com/kulturkartan/kulturkartan/cmd/kulturkartan/cmd"

func main() {
	cmd.Execute()
}
