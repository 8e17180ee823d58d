package main

import (
	"fmt"
	"os"

	"github.com/cockroachdb/errors"

	"github.com/tangthinker/dankutility/cmd/dankutility/commands"
)

func main() {
	if err := commands.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		if hint := errors.FlattenHints(err); hint != "" {
			fmt.Fprintln(os.Stderr, "Hint:", hint)
		}
		os.Exit(1)
	}
}
