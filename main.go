package main

import "github.com/deploymenttheory/go-ataraid/cmd"

func main() {
	cmd.Execute()
}
