package netquality

import "errors"

var (
	// ErrInvalidQuality is returned when parsing an unrecognised quality name
	ErrInvalidQuality = errors.New("invalid quality")
	// ErrInvalidThresholds is returned when thresholds are not ordered
	ErrInvalidThresholds = errors.New("quality thresholds must be ordered good < fair < poor")
)
