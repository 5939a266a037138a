package security

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
)

var (
	ErrMessageTooLarge = errors.New("message exceeds maximum size")
	ErrJSONTooDeep     = errors.New("JSON nesting exceeds maximum depth")
	ErrInvalidJSON     = errors.New("invalid JSON")
)

// PayloadLimits bounds untrusted JSON: raw Telegram updates entering the
// router and tool arguments written by the model. Zero fields take the
// defaults.
type PayloadLimits struct {
	MaxBytes int
	MaxDepth int
}

const (
	DefaultMaxMessageSize = 256 << 10
	DefaultMaxJSONDepth   = 32
)

// Check validates size first, then nesting depth. Empty input passes.
func (l PayloadLimits) Check(data []byte) error {
	if err := ValidateMessageSize(data, l.MaxBytes); err != nil {
		return err
	}
	return ValidateJSONDepth(data, l.MaxDepth)
}

// ValidateMessageSize rejects data longer than limit bytes.
func ValidateMessageSize(data []byte, limit int) error {
	limit = orDefault(limit, DefaultMaxMessageSize)
	if len(data) > limit {
		return fmt.Errorf("%w: %d bytes (max %d)", ErrMessageTooLarge, len(data), limit)
	}
	return nil
}

// ValidateJSONDepth walks the token stream of data and fails as soon as
// objects and arrays nest deeper than limit. The document is never fully
// decoded.
func ValidateJSONDepth(data []byte, limit int) error {
	if len(data) == 0 {
		return nil
	}
	limit = orDefault(limit, DefaultMaxJSONDepth)

	dec := json.NewDecoder(bytes.NewReader(data))
	depth := 0
	for {
		tok, err := dec.Token()
		switch {
		case errors.Is(err, io.EOF) && depth > 0:
			return fmt.Errorf("%w: unexpected end of input", ErrInvalidJSON)
		case errors.Is(err, io.EOF):
			return nil
		case err != nil:
			return fmt.Errorf("%w: %w", ErrInvalidJSON, err)
		}

		d, ok := tok.(json.Delim)
		if !ok {
			continue
		}
		if d == '{' || d == '[' {
			if depth++; depth > limit {
				return fmt.Errorf("%w: depth %d (max %d)", ErrJSONTooDeep, depth, limit)
			}
		} else {
			depth--
		}
	}
}

func orDefault(v, def int) int {
	if v <= 0 {
		return def
	}
	return v
}
