package services

import (
	"crypto/rand"
	"fmt"
	"io"

	"nocaps-server/internal/domain"
)

// CodeAlphabet omits I, O, 0 and 1 so codes survive being read aloud or off a screen.
const CodeAlphabet = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"

const (
	CodeLength      = 6
	maxCodeAttempts = 64
)

type CodeGenerator struct {
	random io.Reader
}

func NewCodeGenerator() *CodeGenerator {
	return &CodeGenerator{random: rand.Reader}
}

// Generate draws codes until inUse reports a free one.
func (g *CodeGenerator) Generate(inUse func(code string) bool) (string, error) {
	for attempt := 0; attempt < maxCodeAttempts; attempt++ {
		code, err := g.draw()
		if err != nil {
			return "", err
		}
		if !inUse(code) {
			return code, nil
		}
	}
	return "", fmt.Errorf("%w after %d attempts", domain.ErrCodeSpaceExhausted, maxCodeAttempts)
}

func (g *CodeGenerator) draw() (string, error) {
	buf := make([]byte, CodeLength)
	if _, err := io.ReadFull(g.random, buf); err != nil {
		return "", fmt.Errorf("read random bytes: %w", err)
	}
	// 256 is a multiple of 32, so the modulo introduces no bias.
	for i, b := range buf {
		buf[i] = CodeAlphabet[int(b)%len(CodeAlphabet)]
	}
	return string(buf), nil
}
