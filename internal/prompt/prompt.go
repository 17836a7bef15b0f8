// Copyright (c) 2024 The mwwallet developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

// Package prompt reads passphrases from a terminal for opening or
// creating a wallet store.
package prompt

import (
	"bufio"
	"bytes"
	"fmt"
	"os"
	"strings"

	"golang.org/x/term"
)

// PassPrompt prompts for a passphrase with the given prefix. If confirm is
// true the user is asked to re-enter it, and the prompt repeats until both
// entries match. The prompt repeats on an empty entry regardless.
func PassPrompt(prefix string, confirm bool) ([]byte, error) {
	for {
		fmt.Printf("%s: ", prefix)
		pass, err := term.ReadPassword(int(os.Stdin.Fd()))
		if err != nil {
			return nil, err
		}
		fmt.Println()
		pass = bytes.TrimSpace(pass)
		if len(pass) == 0 {
			continue
		}
		if !confirm {
			return pass, nil
		}

		fmt.Print("Confirm passphrase: ")
		again, err := term.ReadPassword(int(os.Stdin.Fd()))
		if err != nil {
			return nil, err
		}
		fmt.Println()
		if !bytes.Equal(pass, bytes.TrimSpace(again)) {
			fmt.Println("the entered passphrases do not match")
			continue
		}
		return pass, nil
	}
}

// New prompts for a fresh passphrase to create a store with, confirming it.
func New() ([]byte, error) {
	return PassPrompt("Enter the passphrase for your new wallet", true)
}

// Existing prompts for the passphrase of an already-created store.
func Existing() ([]byte, error) {
	return PassPrompt("Enter your wallet passphrase", false)
}

// promptListBool prompts with a yes/no question, repeating on an invalid
// response, and returns the parsed answer.
func promptListBool(reader *bufio.Reader, prefix, defaultEntry string) (bool, error) {
	prompt := fmt.Sprintf("%s (y/n) [%s]: ", prefix, defaultEntry)
	for {
		fmt.Print(prompt)
		reply, err := reader.ReadString('\n')
		if err != nil {
			return false, err
		}
		reply = strings.TrimSpace(strings.ToLower(reply))
		if reply == "" {
			reply = defaultEntry
		}
		switch reply {
		case "y", "yes":
			return true, nil
		case "n", "no":
			return false, nil
		}
	}
}

// ConfirmCreate asks the user to confirm creating a brand-new wallet store
// at path when none exists yet.
func ConfirmCreate(path string) (bool, error) {
	reader := bufio.NewReader(os.Stdin)
	return promptListBool(reader, fmt.Sprintf("No wallet store found at %s. Create one?", path), "no")
}
