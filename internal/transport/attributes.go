package transport

import (
	"github.com/aws/aws-sdk-go-v2/aws"
	snstypes "github.com/aws/aws-sdk-go-v2/service/sns/types"
	sqstypes "github.com/aws/aws-sdk-go-v2/service/sqs/types"
)

const stringDataType = "String"

func toSNSAttributes(attrs map[string]string) map[string]snstypes.MessageAttributeValue {
	if len(attrs) == 0 {
		return nil
	}
	out := make(map[string]snstypes.MessageAttributeValue, len(attrs))
	for k, v := range attrs {
		if v == "" {
			continue
		}
		out[k] = snstypes.MessageAttributeValue{
			DataType:    aws.String(stringDataType),
			StringValue: aws.String(v),
		}
	}
	return out
}

func toSQSAttributes(attrs map[string]string) map[string]sqstypes.MessageAttributeValue {
	if len(attrs) == 0 {
		return nil
	}
	out := make(map[string]sqstypes.MessageAttributeValue, len(attrs))
	for k, v := range attrs {
		if v == "" {
			continue
		}
		out[k] = sqstypes.MessageAttributeValue{
			DataType:    aws.String(stringDataType),
			StringValue: aws.String(v),
		}
	}
	return out
}

// fromSQSAttributes keeps String and Number attributes. Binary values are
// carried as their raw bytes.
func fromSQSAttributes(attrs map[string]sqstypes.MessageAttributeValue) map[string]string {
	out := make(map[string]string, len(attrs))
	for k, v := range attrs {
		switch {
		case v.StringValue != nil:
			out[k] = *v.StringValue
		case len(v.BinaryValue) > 0:
			out[k] = string(v.BinaryValue)
		}
	}
	return out
}
