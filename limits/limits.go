// Package limits provides centralized size limits for untrusted input
// handled by the call monitoring service.
package limits

import (
	"errors"
	"fmt"
)

const (
	// MaxRTPPacket fits one RTP packet on a standard Ethernet MTU
	MaxRTPPacket = 1500

	// MaxOfferSize bounds an SDP offer accepted over HTTP.
	// Browser offers with simulcast and many codecs stay well below this.
	MaxOfferSize = 64 * 1024

	// MaxFeedMessage bounds a message read from a feed subscriber.
	// Subscribers only send control frames, so anything larger is discarded.
	MaxFeedMessage = 4096

	// MaxCallIDLength bounds call identifiers accepted in URLs
	MaxCallIDLength = 128
)

var (
	// ErrEmpty indicates empty input was provided
	ErrEmpty = errors.New("empty input")

	// ErrTooLarge indicates input exceeds its maximum size
	ErrTooLarge = errors.New("input too large")
)

// ValidateSize validates data against maxSize.
// Returns an error with context including the actual and maximum sizes.
func ValidateSize(data []byte, maxSize int) error {
	if len(data) == 0 {
		return ErrEmpty
	}
	if len(data) > maxSize {
		return fmt.Errorf("%w: size %d exceeds limit %d", ErrTooLarge, len(data), maxSize)
	}
	return nil
}

// ValidateOffer validates an SDP offer against MaxOfferSize.
func ValidateOffer(sdp string) error {
	if sdp == "" {
		return ErrEmpty
	}
	if len(sdp) > MaxOfferSize {
		return fmt.Errorf("%w: offer size %d exceeds limit %d", ErrTooLarge, len(sdp), MaxOfferSize)
	}
	return nil
}

// ValidateCallID validates a call identifier taken from a request path.
func ValidateCallID(id string) error {
	if id == "" {
		return ErrEmpty
	}
	if len(id) > MaxCallIDLength {
		return fmt.Errorf("%w: call id length %d exceeds limit %d", ErrTooLarge, len(id), MaxCallIDLength)
	}
	return nil
}
