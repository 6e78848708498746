// Command swagger2react turns an OpenAPI/Swagger document into API sheets and
// a typed React client tree.
package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/mark3labs/swagger2react/internal/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		if !errors.Is(err, cli.ErrProblems) {
			fmt.Fprintln(os.Stderr, "Error:", err)
		}
		if errors.Is(err, cli.ErrUsage) {
			os.Exit(2)
		}
		os.Exit(1)
	}
}
