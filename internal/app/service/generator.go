package service

import "math/rand/v2"

// Alphabet holds the symbols generated codes are drawn from.
const Alphabet = "0123456789abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ"

// DefaultCodeLength is the length of generated codes.
const DefaultCodeLength = 6

// CodeGenerator produces candidate codes. Uniqueness is the store's job.
type CodeGenerator interface {
	Generate(length int) string
}

// RandomGenerator draws every symbol independently and uniformly from Alphabet.
// The package-level source of math/rand/v2 is safe for concurrent use.
type RandomGenerator struct{}

func (RandomGenerator) Generate(length int) string {
	b := make([]byte, length)
	for i := range b {
		b[i] = Alphabet[rand.IntN(len(Alphabet))]
	}
	return string(b)
}
