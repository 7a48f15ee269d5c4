package codec

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"

	"gopkg.in/yaml.v3"

	"fabriclens/internal/report"
)

// YAMLCodec writes results as YAML. The document has the same shape and
// keys as the JSON export.
type YAMLCodec struct{}

// NewYAMLCodec creates a new YAML codec
func NewYAMLCodec() *YAMLCodec {
	return &YAMLCodec{}
}

// Format returns the codec format identifier
func (c *YAMLCodec) Format() string {
	return "yaml"
}

// Parse reads a result from YAML
func (c *YAMLCodec) Parse(r io.Reader) (*report.Result, error) {
	var doc any
	decoder := yaml.NewDecoder(r)
	if err := decoder.Decode(&doc); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	data, err := json.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("failed to convert YAML: %w", err)
	}
	var result report.Result
	if err := json.Unmarshal(data, &result); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}
	return &result, nil
}

// Export writes a result as YAML
func (c *YAMLCodec) Export(result *report.Result, w io.Writer) error {
	data, err := json.Marshal(result)
	if err != nil {
		return fmt.Errorf("failed to encode YAML: %w", err)
	}
	var doc any
	if err := json.NewDecoder(bytes.NewReader(data)).Decode(&doc); err != nil {
		return fmt.Errorf("failed to encode YAML: %w", err)
	}

	encoder := yaml.NewEncoder(w)
	encoder.SetIndent(2)
	if err := encoder.Encode(doc); err != nil {
		return fmt.Errorf("failed to encode YAML: %w", err)
	}
	return encoder.Close()
}
