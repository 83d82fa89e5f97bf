package main

import "github.com/parallel-qsim/qsim/cmd"

func main() {
	cmd.Execute()
}
