// Package hashcli implements the hashpw command: it reads a password without
// echo and prints the argon2id PHC string to put into BRAINBOX_HASHED_PASSWORD.
package hashcli

import (
	"bufio"
	"bytes"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/dmitrijs2005/brainbox/internal/common"
	"golang.org/x/term"
)

// readPassword is a test seam for term.ReadPassword.
var readPassword = term.ReadPassword

// stdinFd is a test seam for the terminal descriptor.
var stdinFd = func() int { return int(os.Stdin.Fd()) }

var (
	ErrEmptyPassword = errors.New("password must not be empty")
	ErrMismatch      = errors.New("passwords do not match")
)

// Hasher turns a password into a storable hash.
type Hasher interface {
	Hash(password string) (string, error)
}

// Command is one invocation of hashpw.
type Command struct {
	Hasher Hasher
	Stdin  io.Reader
	Stdout io.Writer
	Stderr io.Writer
}

// Run parses args and prints the hash on success. It returns the process
// exit code.
//
//	-stdin   read the password from the first line of stdin instead of the terminal
//	-confirm ask twice on the terminal (default true)
func (c *Command) Run(args []string) int {
	fs := flag.NewFlagSet("hashpw", flag.ContinueOnError)
	fs.SetOutput(c.Stderr)
	fromStdin := fs.Bool("stdin", false, "read the password from stdin")
	confirm := fs.Bool("confirm", true, "ask for the password twice")
	if err := fs.Parse(args); err != nil {
		return 2
	}

	var (
		pw  []byte
		err error
	)
	if *fromStdin {
		pw, err = readLine(c.Stdin)
	} else {
		pw, err = c.prompt(*confirm)
	}
	defer common.WipeByteArray(pw)
	if err != nil {
		fmt.Fprintln(c.Stderr, "error:", err)
		return 1
	}

	hash, err := c.Hasher.Hash(string(pw))
	if err != nil {
		fmt.Fprintln(c.Stderr, "error:", err)
		return 1
	}

	fmt.Fprintln(c.Stdout, hash)
	return 0
}

func (c *Command) prompt(confirm bool) ([]byte, error) {
	pw, err := c.ask("Enter password: ")
	if err != nil {
		return nil, err
	}
	if len(pw) == 0 {
		return nil, ErrEmptyPassword
	}
	if !confirm {
		return pw, nil
	}

	again, err := c.ask("Repeat password: ")
	defer common.WipeByteArray(again)
	if err != nil {
		common.WipeByteArray(pw)
		return nil, err
	}
	if !bytes.Equal(pw, again) {
		common.WipeByteArray(pw)
		return nil, ErrMismatch
	}
	return pw, nil
}

// ask prompts on stderr so stdout carries only the hash.
func (c *Command) ask(prompt string) ([]byte, error) {
	if _, err := fmt.Fprint(c.Stderr, prompt); err != nil {
		return nil, err
	}
	pw, err := readPassword(stdinFd())
	fmt.Fprintln(c.Stderr)
	if err != nil {
		return nil, fmt.Errorf("read password: %w", err)
	}
	return pw, nil
}

func readLine(r io.Reader) ([]byte, error) {
	line, err := bufio.NewReader(r).ReadString('\n')
	if err != nil && !(errors.Is(err, io.EOF) && len(line) > 0) {
		if errors.Is(err, io.EOF) {
			return nil, ErrEmptyPassword
		}
		return nil, fmt.Errorf("read stdin: %w", err)
	}
	line = strings.TrimRight(line, "\r\n")
	if line == "" {
		return nil, ErrEmptyPassword
	}
	return []byte(line), nil
}
