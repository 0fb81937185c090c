package main

import "github.com/jsphweid/harmonyjam/cmd"

func main() {
	cmd.Execute()
}
