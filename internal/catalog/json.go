package catalog

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// EncodeJSON renders v as 2-space indented JSON with HTML escaping off, the
// format shared by the checkpoint and result files.
func EncodeJSON(v any) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return nil, fmt.Errorf("encode json: %w", err)
	}
	return buf.Bytes(), nil
}
