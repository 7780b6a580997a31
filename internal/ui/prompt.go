package ui

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"

	"golang.org/x/term"

	"termbackup/internal/tbkerr"
)

// ReadPassword prompts on stderr and reads a passphrase from stdin without
// echo. Falls back to a plain line read when stdin is not a terminal, which
// keeps piped invocations working.
func ReadPassword(prompt string) (string, error) {
	fmt.Fprint(os.Stderr, prompt)
	fd := int(os.Stdin.Fd())
	if term.IsTerminal(fd) {
		raw, err := term.ReadPassword(fd)
		fmt.Fprintln(os.Stderr)
		if err != nil {
			return "", tbkerr.Wrap(tbkerr.KindCrypto, err, "read passphrase")
		}
		return string(raw), nil
	}

	reader := bufio.NewReader(os.Stdin)
	line, err := reader.ReadString('\n')
	if err != nil && err != io.EOF {
		return "", tbkerr.Wrap(tbkerr.KindCrypto, err, "read passphrase")
	}
	return strings.TrimRight(line, "\r\n"), nil
}

// ReadPasswordConfirmed prompts twice and requires both entries to match.
func ReadPasswordConfirmed(prompt string) (string, error) {
	first, err := ReadPassword(prompt)
	if err != nil {
		return "", err
	}
	second, err := ReadPassword("Confirm: ")
	if err != nil {
		return "", err
	}
	if first != second {
		return "", tbkerr.New(tbkerr.KindCrypto, "passphrases do not match")
	}
	return first, nil
}

// Confirm asks a yes/no question on the given reader/writer pair.
func Confirm(in io.Reader, out io.Writer, question string) (bool, error) {
	fmt.Fprintf(out, "%s [y/N]: ", question)
	reader := bufio.NewReader(in)
	line, err := reader.ReadString('\n')
	if err != nil && err != io.EOF {
		return false, err
	}
	answer := strings.ToLower(strings.TrimSpace(line))
	return answer == "y" || answer == "yes", nil
}
