package lib

import "errors"

var errSQSUnavailable = errors.New("sqs client unavailable")
