// Package credentials generates the codes families hand to each other.
package credentials

import (
	"crypto/rand"
	"math/big"
	"strings"
)

// Word lists for readable invite codes
var adjectives = []string{
	"happy", "sunny", "brave", "bright", "cosy", "swift", "clever", "jolly",
	"gentle", "merry", "lucky", "magic", "bouncy", "cheerful", "daring", "eager",
	"golden", "kindly", "lively", "noble", "perky", "quiet", "rosy", "snappy",
	"tidy", "warm", "zippy", "bold", "cosmic", "dreamy", "fuzzy", "silly",
}

var nouns = []string{
	"crayon", "easel", "palette", "doodle", "sketch", "canvas", "marker", "pastel",
	"sticker", "glitter", "ribbon", "button", "kite", "rainbow", "meadow", "comet",
	"dolphin", "panda", "otter", "badger", "fox", "owl", "robin", "puffin",
	"acorn", "pebble", "teapot", "lantern", "balloon", "biscuit", "rocket", "tulip",
}

// Unambiguous characters only: no 0/O, 1/l/I.
const suffixAlphabet = "abcdefghjkmnpqrstuvwxyzABCDEFGHJKLMNPQRSTUVWXYZ23456789"

const suffixLength = 8

// GenerateInviteCode returns a code like "sunny-crayon-4fQk9TzR"
func GenerateInviteCode() (string, error) {
	adjective, err := randomElement(adjectives)
	if err != nil {
		return "", err
	}

	noun, err := randomElement(nouns)
	if err != nil {
		return "", err
	}

	suffix, err := randomString(suffixAlphabet, suffixLength)
	if err != nil {
		return "", err
	}

	return adjective + "-" + noun + "-" + suffix, nil
}

// ValidInviteCode reports whether code has the shape GenerateInviteCode produces
func ValidInviteCode(code string) bool {
	parts := strings.Split(code, "-")
	if len(parts) != 3 || len(parts[2]) != suffixLength {
		return false
	}
	if !contains(adjectives, parts[0]) || !contains(nouns, parts[1]) {
		return false
	}
	for _, c := range parts[2] {
		if !strings.ContainsRune(suffixAlphabet, c) {
			return false
		}
	}
	return true
}

func randomString(alphabet string, n int) (string, error) {
	out := make([]byte, n)
	max := big.NewInt(int64(len(alphabet)))
	for i := range out {
		num, err := rand.Int(rand.Reader, max)
		if err != nil {
			return "", err
		}
		out[i] = alphabet[num.Int64()]
	}
	return string(out), nil
}

// randomElement picks a random element from a string slice
func randomElement(slice []string) (string, error) {
	if len(slice) == 0 {
		return "", nil
	}

	num, err := rand.Int(rand.Reader, big.NewInt(int64(len(slice))))
	if err != nil {
		return "", err
	}

	return slice[num.Int64()], nil
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
