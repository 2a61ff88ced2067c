package types

// redacted is the replacement emitted wherever a secret would otherwise be
// printed or serialized.
const redacted = "***REDACTED***"

// SecretString holds a sensitive value (bot tokens, encryption keys,
// connection strings) and redacts itself in every rendering path that could
// leak it: fmt verbs via Stringer, and JSON via MarshalJSON.
//
// Call Unmask at the single point where the raw value is genuinely needed,
// such as building an Authorization header or opening a database pool.
type SecretString string

// String satisfies fmt.Stringer and always returns the redaction marker.
func (s SecretString) String() string {
	return redacted
}

// MarshalJSON serializes the redaction marker, never the raw value.
func (s SecretString) MarshalJSON() ([]byte, error) {
	return []byte(`"` + redacted + `"`), nil
}

// Unmask returns the raw secret. Keep call sites few and auditable.
func (s SecretString) Unmask() string {
	return string(s)
}
