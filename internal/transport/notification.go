package transport

import (
	"encoding/json"
	"strings"

	"fanout/pkg/models"
)

// notification is the JSON document SNS delivers when raw message delivery
// is off.
type notification struct {
	Type              string `json:"Type"`
	MessageID         string `json:"MessageId"`
	TopicArn          string `json:"TopicArn"`
	Message           string `json:"Message"`
	MessageAttributes map[string]struct {
		Type  string `json:"Type"`
		Value string `json:"Value"`
	} `json:"MessageAttributes"`
}

// unwrapNotification replaces an SNS notification body with the published
// message and lifts its attributes. SQS attributes win on conflict.
func unwrapNotification(rec *models.QueueRecord) {
	body := strings.TrimSpace(rec.Body)
	if !strings.HasPrefix(body, "{") || !strings.Contains(body, `"TopicArn"`) {
		return
	}

	var n notification
	if err := json.Unmarshal([]byte(body), &n); err != nil {
		return
	}
	if n.Type != "Notification" || n.TopicArn == "" {
		return
	}

	rec.Body = n.Message
	if rec.Attributes == nil {
		rec.Attributes = make(map[string]string, len(n.MessageAttributes))
	}
	for k, v := range n.MessageAttributes {
		if _, exists := rec.Attributes[k]; !exists {
			rec.Attributes[k] = v.Value
		}
	}
}
