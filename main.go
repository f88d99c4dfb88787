package main

import "github.com/omnirag/omnirag-go/cmd"

func main() {
	cmd.Execute()
}
