package main

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/mailsift/mailsift/internal/credential"
)

// Swapped out in tests; the real functions hit the system keyring.
var (
	storeSecret  = credential.Set
	removeSecret = credential.Delete
)

// manageCredentials handles the -set-password and -delete-password
// flags. The password is read as a single line from in, so it can be
// piped as well as typed.
func manageCredentials(setAccount, deleteAccount string, in io.Reader) error {
	if deleteAccount != "" {
		if err := removeSecret(credential.AccountKey(deleteAccount)); err != nil {
			return fmt.Errorf("deleting password for %s: %w", deleteAccount, err)
		}
		return nil
	}

	password, err := bufio.NewReader(in).ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("reading password: %w", err)
	}
	password = strings.TrimRight(password, "\r\n")
	if password == "" {
		return errors.New("empty password")
	}

	if err := storeSecret(credential.AccountKey(setAccount), password); err != nil {
		return fmt.Errorf("storing password for %s: %w", setAccount, err)
	}
	return nil
}
