package limits

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestValidateSize(t *testing.T) {
	tests := []struct {
		name    string
		size    int
		max     int
		wantErr error
	}{
		{"empty", 0, MaxRTPPacket, ErrEmpty},
		{"one byte", 1, MaxRTPPacket, nil},
		{"at limit", MaxRTPPacket, MaxRTPPacket, nil},
		{"one over", MaxRTPPacket + 1, MaxRTPPacket, ErrTooLarge},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateSize(make([]byte, tt.size), tt.max)
			if tt.wantErr == nil {
				assert.NoError(t, err)
				return
			}
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestValidateOffer(t *testing.T) {
	assert.ErrorIs(t, ValidateOffer(""), ErrEmpty)
	assert.NoError(t, ValidateOffer("v=0\r\n"))
	assert.NoError(t, ValidateOffer(strings.Repeat("a", MaxOfferSize)))

	err := ValidateOffer(strings.Repeat("a", MaxOfferSize+1))
	assert.ErrorIs(t, err, ErrTooLarge)
	assert.Contains(t, err.Error(), "65537")
}

func TestValidateCallID(t *testing.T) {
	assert.ErrorIs(t, ValidateCallID(""), ErrEmpty)
	assert.NoError(t, ValidateCallID("3f8e1c52-9a7b-4c1e-8d2f-0b6a5e4c3d21"))
	assert.ErrorIs(t, ValidateCallID(strings.Repeat("x", MaxCallIDLength+1)), ErrTooLarge)
}
