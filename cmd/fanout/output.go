package main

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/aws/aws-sdk-go-v2/service/sns"

	"fanout/internal/filterpolicy"
	"fanout/pkg/models"
)

func printPublish(w io.Writer, event, message string, request *sns.PublishInput, receipt models.DeliveryReceipt) error {
	payload, err := json.Marshal(request)
	if err != nil {
		return fmt.Errorf("failed to render publish request: %w", err)
	}

	_, err = fmt.Fprintf(w,
		"Publish Success!\n"+
			"REQUEST INFO\n"+
			"Message Event : %s\n"+
			"Message Data : %s\n"+
			"Full Payload : %s\n"+
			"Message Length : %d\n"+
			"RESPONSE INFO\n"+
			"Message ID : %s\n"+
			"Message Length : %d\n",
		event, message, payload, len(message), receipt.MessageID, receipt.PayloadLength,
	)
	return err
}

func printSend(w io.Writer, queueName, messageID string) error {
	_, err := fmt.Fprintf(w, "Send Success!\nQueue : %s\nMessage ID : %s\n", queueName, messageID)
	return err
}

func printFilterPolicy(w io.Writer, policy filterpolicy.Policy) error {
	_, err := fmt.Fprintln(w, policy.String())
	return err
}
