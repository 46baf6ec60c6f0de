package config

import (
	"encoding/json"
	"strconv"
)

// redactedMarker is what a set Secret renders as anywhere it is printed or
// serialized.
const redactedMarker = "[REDACTED]"

// Secret holds a credential such as an embeddings API key or a Supabase anon
// key. It prints and serializes as a marker and decodes the marker back to
// an unset value, so a dumped config never yields a usable key.
type Secret string

func (s Secret) redacted() string {
	if s == "" {
		return ""
	}
	return redactedMarker
}

// String implements fmt.Stringer.
func (s Secret) String() string { return s.redacted() }

// GoString implements fmt.GoStringer.
func (s Secret) GoString() string { return "config.Secret(" + redactedMarker + ")" }

// Value returns the credential itself.
func (s Secret) Value() string { return string(s) }

// IsSet reports whether a credential was configured.
func (s Secret) IsSet() bool { return s != "" }

// Summary renders the secret for logs as "[REDACTED:<length>]", or "" when
// unset.
func (s Secret) Summary() string {
	if s == "" {
		return ""
	}
	return "[REDACTED:" + strconv.Itoa(len(s)) + "]"
}

// MarshalJSON implements json.Marshaler.
func (s Secret) MarshalJSON() ([]byte, error) { return json.Marshal(s.redacted()) }

// MarshalText implements encoding.TextMarshaler.
func (s Secret) MarshalText() ([]byte, error) { return []byte(s.redacted()), nil }

// UnmarshalJSON implements json.Unmarshaler.
func (s *Secret) UnmarshalJSON(data []byte) error {
	var raw string
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	*s = secretFromRaw(raw)
	return nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (s *Secret) UnmarshalText(text []byte) error {
	*s = secretFromRaw(string(text))
	return nil
}

func secretFromRaw(raw string) Secret {
	if raw == redactedMarker {
		return ""
	}
	return Secret(raw)
}
