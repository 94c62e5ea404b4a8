package webhook

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestVerifySecretToken(t *testing.T) {
	tests := []struct {
		name     string
		received string
		secret   string
		want     bool
	}{
		{"no secret configured", "", "", true},
		{"no secret configured ignores header", "anything", "", true},
		{"match", "s3cret", "s3cret", true},
		{"missing header", "", "s3cret", false},
		{"mismatch", "s3creT", "s3cret", false},
		{"prefix", "s3c", "s3cret", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, verifySecretToken(tt.received, tt.secret))
		})
	}
}
