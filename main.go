package main

import "github.com/khanhnv2901/siteterminal/cmd"

var execCmd = cmd.Execute

func main() {
	execCmd()
}
