package scoring

import "errors"

// ErrNotANumber is returned by the sanitizers when an input is NaN.
var ErrNotANumber = errors.New("value is not a number")
