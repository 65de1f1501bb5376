package main

import (
	"fmt"
	"os"
	stdos "os"
)

func main() {
	fmt.Println("starting")
	os.Exit(1) // want "os.Exit called in main"

	defer func() {
		stdos.Exit(2) // want "os.Exit called in main"
	}()
}

func helper() {
	os.Exit(3)
}

type server struct{}

func (server) main() {
	os.Exit(4)
}
