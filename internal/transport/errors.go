package transport

import (
	"errors"

	sqstypes "github.com/aws/aws-sdk-go-v2/service/sqs/types"
	"github.com/aws/smithy-go"

	apperrors "fanout/pkg/errors"
)

var missingQueueCodes = map[string]bool{
	"AWS.SimpleQueueService.NonExistentQueue": true,
	"QueueDoesNotExist":                       true,
	"NonExistentQueue":                        true,
}

func isMissingQueue(err error) bool {
	var notExist *sqstypes.QueueDoesNotExist
	if errors.As(err, &notExist) {
		return true
	}

	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		return missingQueueCodes[apiErr.ErrorCode()]
	}
	return false
}

// classify maps an AWS failure onto the error taxonomy: a missing queue is a
// fatal configuration error, anything else is a retryable transport error.
func classify(op string, err error) error {
	if err == nil {
		return nil
	}

	if isMissingQueue(err) {
		return apperrors.ErrQueueNotFound.WithCause(err).WithDetail("operation", op)
	}

	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		return apperrors.ErrTransport.WithCause(err).
			WithDetail("operation", op).
			WithDetail("aws_code", apiErr.ErrorCode())
	}

	return apperrors.ErrTransport.WithCause(err).WithDetail("operation", op)
}
