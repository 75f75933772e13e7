package conferences

import (
	"bytes"
	"encoding/json"
)

// Description is optional free text. An absent description is distinct from an
// intentionally empty one; fallback display text belongs to the renderer.
type Description struct {
	text    string
	present bool
}

// SomeDescription wraps text as a present description, even when text is empty.
func SomeDescription(text string) Description {
	return Description{text: text, present: true}
}

// NoDescription returns the absent description.
func NoDescription() Description {
	return Description{}
}

// DescriptionFromPtr maps a nullable column value.
func DescriptionFromPtr(value *string) Description {
	if value == nil {
		return NoDescription()
	}
	return SomeDescription(*value)
}

// Value returns the text and whether it is present.
func (d Description) Value() (string, bool) {
	return d.text, d.present
}

// IsPresent reports whether a description was supplied.
func (d Description) IsPresent() bool {
	return d.present
}

// Or returns the text when present and non-empty, otherwise fallback.
func (d Description) Or(fallback string) string {
	if !d.present || d.text == "" {
		return fallback
	}
	return d.text
}

// Ptr maps the description back to a nullable column value.
func (d Description) Ptr() *string {
	if !d.present {
		return nil
	}
	text := d.text
	return &text
}

// MarshalJSON encodes absence as null.
func (d Description) MarshalJSON() ([]byte, error) {
	if !d.present {
		return []byte("null"), nil
	}
	return json.Marshal(d.text)
}

// UnmarshalJSON decodes null as absent.
func (d *Description) UnmarshalJSON(data []byte) error {
	if bytes.Equal(bytes.TrimSpace(data), []byte("null")) {
		*d = NoDescription()
		return nil
	}
	var text string
	if err := json.Unmarshal(data, &text); err != nil {
		return err
	}
	*d = SomeDescription(text)
	return nil
}
