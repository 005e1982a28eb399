// Copyright (c) 2025 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package prompt

import (
	"bufio"
	"bytes"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/zecsuite/zecwallet/waddrmgr"
	"golang.org/x/term"
)

// RecommendedSeedLen is the length of generated wallet seeds.
const RecommendedSeedLen = 32

// promptList prompts the user with the given prefix, list of valid responses,
// and default list entry to use.  The function will repeat the prompt to the
// user until they enter a valid response.
func promptList(reader *bufio.Reader, prefix string, validResponses []string,
	defaultEntry string) (string, error) {

	// Setup the prompt according to the parameters.
	validStrings := strings.Join(validResponses, "/")
	var prompt string
	if defaultEntry != "" {
		prompt = fmt.Sprintf("%s (%s) [%s]: ", prefix, validStrings,
			defaultEntry)
	} else {
		prompt = fmt.Sprintf("%s (%s): ", prefix, validStrings)
	}

	// Prompt the user until one of the valid responses is given.
	for {
		fmt.Print(prompt)
		reply, err := reader.ReadString('\n')
		if err != nil {
			return "", err
		}
		reply = strings.TrimSpace(strings.ToLower(reply))
		if reply == "" {
			reply = defaultEntry
		}

		for _, validResponse := range validResponses {
			if reply == validResponse {
				return reply, nil
			}
		}
	}
}

// promptListBool prompts the user for a boolean (yes/no) with the given prefix.
// The function will repeat the prompt to the user until they enter a valid
// response.
func promptListBool(reader *bufio.Reader, prefix string,
	defaultEntry string) (bool, error) {

	// Setup the valid responses.
	valid := []string{"n", "no", "y", "yes"}
	response, err := promptList(reader, prefix, valid, defaultEntry)
	if err != nil {
		return false, err
	}
	return response == "yes" || response == "y", nil
}

// readSecret reads a line from the terminal without echo.  Input that is not
// a terminal is read as a plain line from reader.
func readSecret(reader *bufio.Reader) ([]byte, error) {
	fd := int(os.Stdin.Fd())
	if !term.IsTerminal(fd) {
		line, err := reader.ReadString('\n')
		if err != nil {
			return nil, err
		}
		return []byte(strings.TrimSpace(line)), nil
	}

	secret, err := term.ReadPassword(fd)
	if err != nil {
		return nil, err
	}
	fmt.Print("\n")
	return bytes.TrimSpace(secret), nil
}

// Seed prompts the user whether they want to use an existing wallet seed.
// When the user answers no, a seed is generated and displayed to the user
// along with prompting them for confirmation.  When the user answers yes, the
// user is prompted for the hex encoded seed without echo.  All prompts are
// repeated until the user enters a valid response.  The bool returned reports
// whether the seed was entered by the user, which means the wallet is being
// restored.
func Seed(reader *bufio.Reader) ([]byte, bool, error) {
	// Ascertain the wallet generation seed.
	useUserSeed, err := promptListBool(reader, "Do you have an "+
		"existing wallet seed you want to use?", "no")
	if err != nil {
		return nil, false, err
	}
	if !useUserSeed {
		seed := make([]byte, RecommendedSeedLen)
		if _, err := rand.Read(seed); err != nil {
			return nil, false, err
		}

		fmt.Printf("Your wallet generation seed is:\n\n%x\n\n", seed)
		fmt.Println("IMPORTANT: Keep the seed in a safe place as you\n" +
			"will NOT be able to restore your wallet without it.")
		fmt.Println("Please keep in mind that anyone who has access\n" +
			"to the seed can also restore your wallet thereby\n" +
			"giving them access to all your funds, so it is\n" +
			"imperative that you keep it in a secure location.")

		for {
			fmt.Print(`Once you have stored the seed in a safe ` +
				`and secure location, enter "OK" to continue: `)
			confirmSeed, err := reader.ReadString('\n')
			if err != nil {
				return nil, false, err
			}
			confirmSeed = strings.TrimSpace(confirmSeed)
			confirmSeed = strings.Trim(confirmSeed, `"`)
			if confirmSeed == "OK" {
				break
			}
		}

		return seed, false, nil
	}

	for {
		fmt.Print("Enter existing wallet seed: ")
		seedStr, err := readSecret(reader)
		if err != nil {
			return nil, false, err
		}

		seed, err := hex.DecodeString(strings.ToLower(string(seedStr)))
		if err != nil || len(seed) < waddrmgr.MinSeedLen ||
			len(seed) > waddrmgr.MaxSeedLen {

			fmt.Printf("Invalid seed specified.  Must be a "+
				"hexadecimal value that is at least %d bits and "+
				"at most %d bits\n", waddrmgr.MinSeedLen*8,
				waddrmgr.MaxSeedLen*8)
			continue
		}

		return seed, true, nil
	}
}

// BirthdayHeight prompts the user for the height of the first block that may
// hold funds of the wallet.  An empty response selects defaultHeight.
// Responses below minHeight are rejected.
func BirthdayHeight(reader *bufio.Reader, minHeight,
	defaultHeight uint32) (uint32, error) {

	for {
		fmt.Printf("Enter the wallet birthday height [%d]: ",
			defaultHeight)
		reply, err := reader.ReadString('\n')
		if err != nil {
			return 0, err
		}
		reply = strings.TrimSpace(reply)
		if reply == "" {
			return defaultHeight, nil
		}

		height, err := strconv.ParseUint(reply, 10, 32)
		if err != nil {
			fmt.Printf("Input error: %v\n", err)
			continue
		}
		if uint32(height) < minHeight {
			fmt.Printf("The birthday height must be at least %d\n",
				minHeight)
			continue
		}

		return uint32(height), nil
	}
}
