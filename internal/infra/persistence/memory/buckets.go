package memory

import (
	"encoding/json"
	"fmt"
)

// BucketNames lists the snapshot buckets in the order durable stores write them.
var BucketNames = []string{
	"territories",
	"addresses",
	"houses",
	"visits",
	"tokens",
	"token_territories",
	"phone_territories",
	"phone_numbers",
	"phone_calls",
	"user_tokens",
	"recalls",
}

func (s *Snapshot) bucket(name string) (any, bool) {
	switch name {
	case "territories":
		return &s.Territories, true
	case "addresses":
		return &s.Addresses, true
	case "houses":
		return &s.Houses, true
	case "visits":
		return &s.Visits, true
	case "tokens":
		return &s.Tokens, true
	case "token_territories":
		return &s.TokenTerritories, true
	case "phone_territories":
		return &s.PhoneTerritories, true
	case "phone_numbers":
		return &s.PhoneNumbers, true
	case "phone_calls":
		return &s.PhoneCalls, true
	case "user_tokens":
		return &s.UserTokens, true
	case "recalls":
		return &s.Recalls, true
	default:
		return nil, false
	}
}

// EncodeBucket marshals a single bucket to JSON.
func (s *Snapshot) EncodeBucket(name string) ([]byte, error) {
	target, ok := s.bucket(name)
	if !ok {
		return nil, fmt.Errorf("unknown bucket %q", name)
	}
	return json.Marshal(target)
}

// DecodeBucket unmarshals payload into the named bucket. Unknown buckets are
// ignored so older databases with retired buckets still load.
func (s *Snapshot) DecodeBucket(name string, payload []byte) error {
	target, ok := s.bucket(name)
	if !ok || len(payload) == 0 {
		return nil
	}
	if err := json.Unmarshal(payload, target); err != nil {
		return fmt.Errorf("decode %s: %w", name, err)
	}
	return nil
}
