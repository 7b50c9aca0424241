package types

const redactedPlaceholder = "***REDACTED***"

var redactedJSON = []byte(`"` + redactedPlaceholder + `"`)

// SecretString holds credentials such as the processor API key or the
// database DSN. It redacts itself in fmt output, slog attributes and JSON,
// so a config dump can be logged safely.
type SecretString string

func (s SecretString) String() string {
	return redactedPlaceholder
}

func (s SecretString) MarshalJSON() ([]byte, error) {
	return redactedJSON, nil
}

// Unmask returns the raw value. Call sites should be limited to building
// Authorization headers and connection strings.
func (s SecretString) Unmask() string {
	return string(s)
}

// IsSet reports whether a non-empty secret was configured.
func (s SecretString) IsSet() bool {
	return s != ""
}
