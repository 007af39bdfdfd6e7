package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFormatNumber(t *testing.T) {
	tests := []struct {
		n    int
		want string
	}{
		{0, "0"},
		{999, "999"},
		{1000, "1,000"},
		{123456, "123,456"},
		{1234567, "1,234,567"},
		{-4500, "-4,500"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, formatNumber(tt.n), "formatNumber(%d)", tt.n)
	}
}
