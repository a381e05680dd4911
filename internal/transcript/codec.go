// File: internal/transcript/codec.go
package transcript

import (
	"fmt"

	jsoniter "github.com/json-iterator/go"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Encode serializes t for storage.
func Encode(t Transcript) ([]byte, error) {
	if t == nil {
		t = Transcript{}
	}
	data, err := json.Marshal(t)
	if err != nil {
		return nil, fmt.Errorf("failed to encode transcript: %w", err)
	}
	return data, nil
}

// Decode parses a stored transcript. Empty input and JSON null yield an empty transcript.
func Decode(data []byte) (Transcript, error) {
	if len(data) == 0 || string(data) == "null" {
		return Transcript{}, nil
	}
	var t Transcript
	if err := json.Unmarshal(data, &t); err != nil {
		return nil, fmt.Errorf("failed to decode transcript: %w", err)
	}
	return t, nil
}
