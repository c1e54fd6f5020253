package main

import (
	"os"

	"github.com/carematch/community-recommender/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
