package main

import (
	"log"
	"os"

	"github.com/Nistp/SerialTerminalGUI/cli"
)

func main() {
	c := cli.New()
	if err := c.Run(os.Args); err != nil {
		log.Fatal(err)
	}
}
