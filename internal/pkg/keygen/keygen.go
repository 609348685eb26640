// Package keygen produces license keys.
package keygen

import (
	"crypto/rand"
	"fmt"
	"math/big"
	"strings"
)

// Alphabet without characters that are easy to misread (0/O, 1/I/L).
const Alphabet = "ABCDEFGHJKMNPQRSTUVWXYZ23456789"

// Generator produces keys shaped like PREFIX-XXXXX-XXXXX-XXXXX-XXXXX.
type Generator struct {
	Prefix    string
	Groups    int
	GroupSize int
}

// New returns a generator using the default shape: five groups of five
// characters, about 124 bits of entropy.
func New(prefix string) *Generator {
	return &Generator{Prefix: prefix, Groups: 5, GroupSize: 5}
}

// Generate returns a new random key. Uniqueness is not guaranteed here;
// callers check the key against the store and retry on collision.
func (g *Generator) Generate() (string, error) {
	if g.Groups < 1 || g.GroupSize < 1 {
		return "", fmt.Errorf("keygen: invalid shape %dx%d", g.Groups, g.GroupSize)
	}

	max := big.NewInt(int64(len(Alphabet)))
	groups := make([]string, 0, g.Groups+1)
	if g.Prefix != "" {
		groups = append(groups, strings.ToUpper(g.Prefix))
	}

	buf := make([]byte, g.GroupSize)
	for i := 0; i < g.Groups; i++ {
		for j := range buf {
			n, err := rand.Int(rand.Reader, max)
			if err != nil {
				return "", fmt.Errorf("keygen: read entropy: %w", err)
			}
			buf[j] = Alphabet[n.Int64()]
		}
		groups = append(groups, string(buf))
	}

	return strings.Join(groups, "-"), nil
}

// Valid reports whether key is syntactically a license key: dash separated
// groups of alphabet characters. Used to reject garbage before any lookup.
func Valid(key string) bool {
	if len(key) < 8 || len(key) > 128 {
		return false
	}
	for _, group := range strings.Split(key, "-") {
		if group == "" {
			return false
		}
		for _, r := range group {
			if !(r >= 'A' && r <= 'Z') && !(r >= '0' && r <= '9') {
				return false
			}
		}
	}
	return true
}
