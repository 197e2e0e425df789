package main

import "github.com/instrumentgpt/instrumentgpt/cmd"

func main() {
	cmd.Execute()
}
