package fulfillment

import (
	"crypto/rand"
	"fmt"
	"math/big"
	"strings"
)

// codeAlphabet leaves out 0/O and 1/I/L.
const codeAlphabet = "ABCDEFGHJKMNPQRSTUVWXYZ23456789"

// CodeGenerator produces gift card redemption codes.
type CodeGenerator interface {
	Generate() (string, error)
}

// RandomCodeGenerator emits codes like "7KQX-M2PA-R9HD".
type RandomCodeGenerator struct {
	Groups    int
	GroupSize int
}

// NewRandomCodeGenerator returns a generator with three groups of four.
func NewRandomCodeGenerator() *RandomCodeGenerator {
	return &RandomCodeGenerator{Groups: 3, GroupSize: 4}
}

func (g *RandomCodeGenerator) Generate() (string, error) {
	size := big.NewInt(int64(len(codeAlphabet)))
	groups := make([]string, 0, g.Groups)
	for i := 0; i < g.Groups; i++ {
		var sb strings.Builder
		for j := 0; j < g.GroupSize; j++ {
			n, err := rand.Int(rand.Reader, size)
			if err != nil {
				return "", fmt.Errorf("generate gift card code: %w", err)
			}
			sb.WriteByte(codeAlphabet[n.Int64()])
		}
		groups = append(groups, sb.String())
	}
	return strings.Join(groups, "-"), nil
}

// NormalizeCode uppercases a user-typed code and strips whitespace.
func NormalizeCode(code string) string {
	return strings.ToUpper(strings.Join(strings.Fields(code), ""))
}
