package continuum

import "errors"

// ErrNoActiveEpoch is returned by EndEpoch when no epoch is active, so
// callers can distinguish "nothing to close" from a real checkpoint.
var ErrNoActiveEpoch = errors.New("continuum: no active epoch")
