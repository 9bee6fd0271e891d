package main

import (
	"os"

	"github.com/melih/docker-cicd-manager/cmd/cicdctl/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
