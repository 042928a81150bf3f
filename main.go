package main

import "github.com/sarchlab/cachemodel/cmd"

func main() {
	cmd.Execute()
}
