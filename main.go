package main

import "github.com/KaramelBytes/codeloom-cli/cmd"

func main() {
	cmd.Execute()
}
