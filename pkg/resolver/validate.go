package resolver

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/pmkol/quickdns/pkg/trie"
)

var (
	// ErrInvalidInput is wrapped by every validation error.
	ErrInvalidInput = errors.New("invalid input")

	ErrShutdownTimeout = errors.New("shutdown timeout")
)

// ValidateAddr checks that addr is four period separated decimal
// integers in [0, 255]. It checks syntax only.
func ValidateAddr(addr string) error {
	parts := strings.Split(addr, ".")
	if len(parts) != 4 {
		return fmt.Errorf("%w: invalid address %q, want 4 parts, got %d", ErrInvalidInput, addr, len(parts))
	}
	for _, p := range parts {
		n, err := strconv.Atoi(p)
		if err != nil {
			return fmt.Errorf("%w: invalid address %q, %q is not a number", ErrInvalidInput, addr, p)
		}
		if n < 0 || n > 255 {
			return fmt.Errorf("%w: invalid address %q, %d out of range", ErrInvalidInput, addr, n)
		}
	}
	return nil
}

// ValidateName checks that name is valid utf-8 and not blank.
func ValidateName(name string) error {
	if !trie.Valid(name) {
		return fmt.Errorf("%w: name %q is not valid utf-8", ErrInvalidInput, name)
	}
	if len(trie.Normalize(name)) == 0 {
		return fmt.Errorf("%w: empty name", ErrInvalidInput)
	}
	return nil
}

// lookupName normalizes name for a read or a removal. ok is false if
// name can never be stored.
func lookupName(name string) (_ string, ok bool) {
	if !trie.Valid(name) {
		return "", false
	}
	name = trie.Normalize(name)
	return name, len(name) > 0
}

// normalizeRecord returns the normalized name and the trimmed address,
// or an error wrapping ErrInvalidInput.
func normalizeRecord(name, addr string) (string, string, error) {
	if err := ValidateName(name); err != nil {
		return "", "", err
	}
	name = trie.Normalize(name)
	addr = strings.TrimSpace(addr)
	if len(addr) == 0 {
		return "", "", fmt.Errorf("%w: empty address for %s", ErrInvalidInput, name)
	}
	if err := ValidateAddr(addr); err != nil {
		return "", "", err
	}
	return name, addr, nil
}
