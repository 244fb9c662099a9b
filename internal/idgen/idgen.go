// Package idgen generates short, URL-safe ids backed by nanoid.
package idgen

import (
	"fmt"
	"strings"

	nanoid "github.com/matoous/go-nanoid/v2"
)

// Kind names what an id identifies; it becomes the id's prefix.
type Kind string

const (
	Session  Kind = "vs"
	Snapshot Kind = "snap"
)

// Alphabet defines the character set used for the random portion of the ID.
const Alphabet = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

// Length is the number of random characters generated (excluding the prefix).
const Length = 12

// Prefix returns the prefix of ids of kind k, separator included.
func (k Kind) Prefix() string { return string(k) + "-" }

// New returns a fresh id of kind k.
func New(k Kind) (string, error) {
	id, err := nanoid.Generate(Alphabet, Length)
	if err != nil {
		return "", fmt.Errorf("idgen: %w", err)
	}
	return k.Prefix() + id, nil
}

// Valid reports whether id could have been produced by New(k).
func Valid(k Kind, id string) bool {
	rest, ok := strings.CutPrefix(id, k.Prefix())
	if !ok || len(rest) != Length {
		return false
	}
	for _, c := range rest {
		if !strings.ContainsRune(Alphabet, c) {
			return false
		}
	}
	return true
}
