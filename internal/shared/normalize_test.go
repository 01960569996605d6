package shared

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFoldStripsAccentsAndCase(t *testing.T) {
	cases := map[string]string{
		"Pérez":     "perez",
		"JOSÉ":      "jose",
		"Muñoz":     "munoz",
		"Gutiérrez": "gutierrez",
		"plain":     "plain",
		"":          "",
	}
	for in, want := range cases {
		assert.Equal(t, want, Fold(in), "Fold(%q)", in)
	}
}
