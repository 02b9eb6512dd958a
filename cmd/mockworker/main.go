// Command mockworker is a stand-in for ServiceRunner that can be used to try out the harness
// without the real service. Point SERVICE_RUNNER at the built binary.
package main

import (
	"os"

	"github.com/imagealter/worker-test-harness/mockworker"
)

func main() {
	os.Exit(mockworker.Main(os.Args[1:], os.Stdin, os.Stdout, os.Stderr))
}
