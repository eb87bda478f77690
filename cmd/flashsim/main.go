// Command flashsim simulates garbage collection on a flash drive and reports
// the write amplification it causes.
package main

import (
	"github.com/tebeka/atexit"

	"github.com/sarchlab/flashsim/cmd/flashsim/cmd"
)

func main() {
	cmd.Execute()
	atexit.Exit(0)
}
