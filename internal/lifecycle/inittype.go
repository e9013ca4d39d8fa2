package lifecycle

import (
	"fmt"
	"strings"

	"fanout/internal/constants"
	apperrors "fanout/pkg/errors"
)

// InitializationType selects which parts of the messaging stack start with
// the host. Members combine with bitwise OR.
type InitializationType uint8

const (
	SNSProducer InitializationType = 1 << iota
	SQSConsumer
	EventPolling
	QueuePolling
)

var initTypeNames = []struct {
	flag InitializationType
	name string
}{
	{SNSProducer, constants.InitSNSProducer},
	{SQSConsumer, constants.InitSQSConsumer},
	{EventPolling, constants.InitEventPolling},
	{QueuePolling, constants.InitQueuePolling},
}

// ParseInitializationType accepts flag names, each optionally holding several
// names joined by "|".
func ParseInitializationType(names []string) (InitializationType, error) {
	var t InitializationType
	for _, raw := range names {
		for _, name := range strings.Split(raw, "|") {
			name = strings.ToUpper(strings.TrimSpace(name))
			if name == "" {
				continue
			}
			flag, ok := flagByName(name)
			if !ok {
				return 0, apperrors.ErrConfiguration.
					WithMessage(fmt.Sprintf("unknown initialization type %q", name))
			}
			t |= flag
		}
	}
	return t, nil
}

func flagByName(name string) (InitializationType, bool) {
	for _, n := range initTypeNames {
		if n.name == name {
			return n.flag, true
		}
	}
	return 0, false
}

func (t InitializationType) Has(flag InitializationType) bool {
	return t&flag == flag
}

// Consumes reports whether a consumer has to be built.
func (t InitializationType) Consumes() bool {
	return t&(SQSConsumer|EventPolling|QueuePolling) != 0
}

// Polls reports whether the polling loop has to run.
func (t InitializationType) Polls() bool {
	return t&(EventPolling|QueuePolling) != 0
}

func (t InitializationType) String() string {
	if t == 0 {
		return "NONE"
	}
	parts := make([]string, 0, len(initTypeNames))
	for _, n := range initTypeNames {
		if t.Has(n.flag) {
			parts = append(parts, n.name)
		}
	}
	return strings.Join(parts, "|")
}
