package model

import "fmt"

// Target is one monitored (instance, database) pair. Targets come from
// configuration and are immutable for the duration of a cycle.
type Target struct {
	Instance string   `json:"instance"`
	Database string   `json:"database"`
	Enabled  bool     `json:"enabled"`
	Tags     []string `json:"tags,omitempty"`
}

// Key returns the canonical "instance/database" identifier.
func (t Target) Key() string {
	return t.Instance + "/" + t.Database
}

func (t Target) String() string {
	return t.Key()
}

// HasTag reports whether the target carries the given tag.
func (t Target) HasTag(tag string) bool {
	for _, tg := range t.Tags {
		if tg == tag {
			return true
		}
	}
	return false
}

// ParseTargetKey splits an "instance/database" key back into its parts.
func ParseTargetKey(key string) (instance, database string, err error) {
	for i := 0; i < len(key); i++ {
		if key[i] == '/' {
			return key[:i], key[i+1:], nil
		}
	}
	return "", "", fmt.Errorf("malformed target key %q (want instance/database)", key)
}
