// Package filterpolicy turns a flat list of event patterns into an SNS
// subscription filter policy.
//
// A pattern ending in "*" becomes a prefix rule on the text before it; every
// other pattern is an exact match. Output order follows input order.
package filterpolicy

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	apperrors "fanout/pkg/errors"
)

const Wildcard = "*"

type Rule struct {
	Value    string
	IsPrefix bool
}

func Exact(v string) Rule  { return Rule{Value: v} }
func Prefix(v string) Rule { return Rule{Value: v, IsPrefix: true} }

// Pattern is the inverse of the translation for a single rule.
func (r Rule) Pattern() string {
	if r.IsPrefix {
		return r.Value + Wildcard
	}
	return r.Value
}

func (r Rule) MarshalJSON() ([]byte, error) {
	if r.IsPrefix {
		return json.Marshal(map[string]string{"prefix": r.Value})
	}
	return json.Marshal(r.Value)
}

func (r *Rule) UnmarshalJSON(data []byte) error {
	var exact string
	if err := json.Unmarshal(data, &exact); err == nil {
		*r = Exact(exact)
		return nil
	}

	var prefix struct {
		Prefix *string `json:"prefix"`
	}
	if err := json.Unmarshal(data, &prefix); err != nil || prefix.Prefix == nil {
		return fmt.Errorf("unsupported filter rule: %s", string(data))
	}
	*r = Prefix(*prefix.Prefix)
	return nil
}

type Policy struct {
	AttributeKey string
	Rules        []Rule
}

func (p Policy) IsEmpty() bool {
	return len(p.Rules) == 0
}

// Patterns re-derives the pattern list the policy was built from.
func (p Policy) Patterns() []string {
	out := make([]string, len(p.Rules))
	for i, r := range p.Rules {
		out[i] = r.Pattern()
	}
	return out
}

// MarshalJSON renders the SNS grammar: {"key": ["exact", {"prefix": "p"}]}.
// An empty policy renders as {}.
func (p Policy) MarshalJSON() ([]byte, error) {
	if p.IsEmpty() {
		return []byte("{}"), nil
	}

	var buf bytes.Buffer
	key, err := json.Marshal(p.AttributeKey)
	if err != nil {
		return nil, err
	}
	rules, err := json.Marshal(p.Rules)
	if err != nil {
		return nil, err
	}
	buf.WriteByte('{')
	buf.Write(key)
	buf.WriteByte(':')
	buf.Write(rules)
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

func (p Policy) String() string {
	raw, err := p.MarshalJSON()
	if err != nil {
		return ""
	}
	return string(raw)
}

func (p Policy) Equal(other Policy) bool {
	if p.IsEmpty() && other.IsEmpty() {
		return true
	}
	if p.AttributeKey != other.AttributeKey || len(p.Rules) != len(other.Rules) {
		return false
	}
	for i := range p.Rules {
		if p.Rules[i] != other.Rules[i] {
			return false
		}
	}
	return true
}

// Translate builds the policy for patterns on attributeKey. Patterns that are
// empty, a bare wildcard, or carry a wildcard anywhere but the end are
// configuration errors.
func Translate(attributeKey string, patterns []string) (Policy, error) {
	policy := Policy{AttributeKey: attributeKey, Rules: make([]Rule, 0, len(patterns))}

	for i, pattern := range patterns {
		if err := ValidatePattern(pattern); err != nil {
			return Policy{}, apperrors.ErrConfiguration.
				WithMessage(fmt.Sprintf("invalid filter pattern at index %d: %v", i, err)).
				WithDetail("pattern", pattern)
		}

		if strings.HasSuffix(pattern, Wildcard) {
			policy.Rules = append(policy.Rules, Prefix(strings.TrimSuffix(pattern, Wildcard)))
		} else {
			policy.Rules = append(policy.Rules, Exact(pattern))
		}
	}

	return policy, nil
}

func ValidatePattern(pattern string) error {
	switch {
	case pattern == "":
		return fmt.Errorf("pattern is empty")
	case pattern == Wildcard:
		return fmt.Errorf("bare wildcard matches every event, omit filters instead")
	case strings.Contains(strings.TrimSuffix(pattern, Wildcard), Wildcard):
		return fmt.Errorf("wildcard is only allowed as the last character")
	}
	return nil
}

// Parse reads a policy in SNS grammar. Only single-attribute policies are supported.
func Parse(raw string) (Policy, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return Policy{}, nil
	}

	var doc map[string][]Rule
	if err := json.Unmarshal([]byte(raw), &doc); err != nil {
		return Policy{}, fmt.Errorf("failed to parse filter policy: %w", err)
	}

	switch len(doc) {
	case 0:
		return Policy{}, nil
	case 1:
		for key, rules := range doc {
			return Policy{AttributeKey: key, Rules: rules}, nil
		}
	}
	return Policy{}, fmt.Errorf("filter policy has %d attributes, expected 1", len(doc))
}
