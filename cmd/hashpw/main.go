// Command hashpw prints an argon2id hash of a password for the brainbox
// server configuration.
package main

import (
	"fmt"
	"os"

	"github.com/dmitrijs2005/brainbox/internal/hashcli"
	"github.com/dmitrijs2005/brainbox/internal/server/password"
)

func main() {
	hasher, err := password.NewHasher(password.DefaultParams)
	if err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}

	cmd := &hashcli.Command{Hasher: hasher, Stdin: os.Stdin, Stdout: os.Stdout, Stderr: os.Stderr}
	os.Exit(cmd.Run(os.Args[1:]))
}
