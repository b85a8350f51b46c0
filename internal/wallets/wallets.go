// Package wallets loads the ordered list of account identifiers.
package wallets

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/ethereum/go-ethereum/common"
)

// Prefix every identifier must start with
const Prefix = "0x"

// Source yields the ordered identifiers to run workers for
type Source interface {
	Load() ([]string, error)
}

// FileSource reads identifiers from a newline-separated file
type FileSource struct {
	Path string
	// Strict additionally requires a well-formed 20-byte hex address
	Strict bool
}

// Load implements Source
func (s *FileSource) Load() ([]string, error) {
	f, err := os.Open(s.Path)
	if err != nil {
		return nil, fmt.Errorf("open wallets file: %w", err)
	}
	defer func() {
		_ = f.Close()
	}()

	return Parse(f, s.Strict)
}

// StaticSource returns a fixed list, for tests and embedding
type StaticSource []string

// Load implements Source
func (s StaticSource) Load() ([]string, error) {
	return append([]string(nil), s...), nil
}

// Parse reads one identifier per line. Lines are trimmed; blank, invalid
// and repeated lines are dropped, keeping first-seen order.
func Parse(r io.Reader, strict bool) ([]string, error) {
	var ids []string
	seen := make(map[string]struct{})

	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if !Valid(line, strict) {
			continue
		}
		if _, dup := seen[line]; dup {
			continue
		}
		seen[line] = struct{}{}
		ids = append(ids, line)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read wallets: %w", err)
	}
	return ids, nil
}

// Valid reports whether line is an acceptable identifier
func Valid(line string, strict bool) bool {
	if !strings.HasPrefix(line, Prefix) {
		return false
	}
	if strict {
		return common.IsHexAddress(line)
	}
	return true
}

// Mask replaces all but the last three characters with '*'
func Mask(identifier string) string {
	runes := []rune(identifier)
	if len(runes) <= 3 {
		return identifier
	}
	return strings.Repeat("*", len(runes)-3) + string(runes[len(runes)-3:])
}
