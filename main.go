package main

import (
	"github.com/apiflow-dev/apiflow-runner/pkg/cli"
)

func main() {
	cli.Execute()
}
