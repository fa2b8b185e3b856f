// Package limits centralizes the size limits applied to untrusted input:
// RTP packets read from remote tracks, SDP offers posted to the HTTP API,
// messages read from feed subscribers, and call identifiers in URLs.
//
// # Usage
//
//	if err := limits.ValidateOffer(req.SDP); err != nil {
//	    if errors.Is(err, limits.ErrTooLarge) {
//	        // reject with 413
//	    }
//	}
//
// Errors wrap ErrEmpty or ErrTooLarge and include the actual and maximum
// sizes for logging.
package limits
