package server

import (
	"bytes"
	"encoding/json"

	"github.com/rickgao/papertrade/internal/engine"
)

// ShareCount is a share quantity in a request body. It accepts a JSON number
// or a string of digits; anything else is rejected as invalid input.
type ShareCount int64

func (n *ShareCount) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		return nil
	}

	text := string(data)
	if len(data) > 0 && data[0] == '"' {
		if err := json.Unmarshal(data, &text); err != nil {
			return err
		}
	}

	v, err := engine.ParseShares(text)
	if err != nil {
		return err
	}
	*n = ShareCount(v)
	return nil
}
