package main

import "github.com/jrsteele09/go-role-sessions/cmd/sessionctl/cmd"

func main() {
	cmd.Execute()
}
