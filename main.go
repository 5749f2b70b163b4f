package main

import (
	"log"

	"github.com/srMarlins/ChromaDMX/cmd"
)

func main() {
	if err := cmd.RootCmd.Execute(); err != nil {
		log.Fatal(err)
	}
}
