package main

import (
	_ "time/tzdata"

	"homebot/internal/cli"
)

func main() {
	cli.Execute()
}
