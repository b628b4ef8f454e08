package model

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCell(t *testing.T) {
	tests := []struct {
		raw  string
		want string
	}{
		{raw: `null`, want: "NULL"},
		{raw: ``, want: "NULL"},
		{raw: `"Chai"`, want: "Chai"},
		{raw: `42`, want: "42"},
		{raw: `9007199254740993`, want: "9007199254740993"},
		{raw: `123456789012345678901234567890`, want: "123456789012345678901234567890"},
		{raw: `18.5`, want: "18.5"},
		{raw: `1e3`, want: "1e3"},
		{raw: `true`, want: "true"},
		{raw: `[1,2]`, want: "[1,2]"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, Cell(json.RawMessage(tt.raw)), tt.raw)
	}
}
