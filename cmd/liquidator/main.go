package main

import (
	"vault-liquidator/internal/cli"
)

func main() {
	cli.Execute()
}
