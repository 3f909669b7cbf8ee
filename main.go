package main

import "github.com/AzielCF/az-track/cmd"

func main() {
	cmd.Execute()
}
