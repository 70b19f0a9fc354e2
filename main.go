package main

import "github.com/kamilpajak/testpulse/cmd/testpulse"

func main() {
	testpulse.Execute()
}
