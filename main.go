package main

import (
	"github.com/manifest-network/chainview/cmd/chainview"
)

func main() {
	chainview.Execute()
}
