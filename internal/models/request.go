// Package models defines API request and response types.
package models

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/danielgtaylor/huma/v2"
)

// Cookie represents a browser cookie as persisted in a vendor cookie jar.
// Field names follow the JSON shape written by DevTools so existing jar
// files stay readable.
type Cookie struct {
	Name     string  `json:"name"`
	Value    string  `json:"value"`
	Domain   string  `json:"domain,omitempty"`
	Path     string  `json:"path,omitempty"`
	Expires  float64 `json:"expires,omitempty"` // Unix seconds, -1 for session cookies
	HTTPOnly bool    `json:"httpOnly,omitempty"`
	Secure   bool    `json:"secure,omitempty"`
	SameSite string  `json:"sameSite,omitempty"`
}

// FindCookie returns the first cookie with the given name.
func FindCookie(cookies []Cookie, name string) (Cookie, bool) {
	for _, c := range cookies {
		if c.Name == name {
			return c, true
		}
	}
	return Cookie{}, false
}

// ItemRef identifies a menu or option in a status change request.
// Callers may send either a bare id (string or number) or the item object
// returned by a list call; vendors that update one item at a time need the
// extra fields.
type ItemRef struct {
	value  any
	fields map[string]any
}

// NewItemRef builds a reference from a bare id.
func NewItemRef(id any) ItemRef {
	return ItemRef{value: id}
}

// NewItemObject builds a reference from an item object.
func NewItemObject(fields map[string]any) ItemRef {
	return ItemRef{fields: fields}
}

// UnmarshalJSON accepts a scalar id or an object.
func (r *ItemRef) UnmarshalJSON(b []byte) error {
	dec := json.NewDecoder(bytes.NewReader(b))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return err
	}
	switch t := v.(type) {
	case map[string]any:
		r.fields = t
		r.value = nil
	case string, json.Number:
		r.value = t
		r.fields = nil
	case nil:
		return fmt.Errorf("item reference must not be null")
	default:
		return fmt.Errorf("unsupported item reference %s", string(b))
	}
	return nil
}

// MarshalJSON writes the reference back in the form it was received.
func (r ItemRef) MarshalJSON() ([]byte, error) {
	if r.fields != nil {
		return json.Marshal(r.fields)
	}
	return json.Marshal(r.value)
}

// Schema lets huma accept both reference forms.
func (r ItemRef) Schema(huma.Registry) *huma.Schema {
	return &huma.Schema{
		Description: "Item id, or the item object returned by a list operation",
	}
}

// Value returns the scalar id, or the first present field among keys when
// the reference is an object.
func (r ItemRef) Value(keys ...string) any {
	if r.fields == nil {
		return r.value
	}
	for _, k := range keys {
		if v, ok := r.fields[k]; ok && v != nil {
			return v
		}
	}
	return nil
}

// String is Value formatted as a string.
func (r ItemRef) String(keys ...string) string {
	return Str(r.Value(keys...))
}

// Field returns a named field of an object reference.
func (r ItemRef) Field(key string) any {
	if r.fields == nil {
		return nil
	}
	return r.fields[key]
}

// IsObject reports whether the reference carries item fields.
func (r ItemRef) IsObject() bool {
	return r.fields != nil
}

// UpdateRequest is the body of the soldout and active operations.
type UpdateRequest struct {
	MenuList    []ItemRef `json:"menuList,omitempty" doc:"Menus to change"`
	OptionList  []ItemRef `json:"optionList,omitempty" doc:"Options to change"`
	RestockedAt string    `json:"restockedAt,omitempty" doc:"Restock time, honoured by vendors that support it"`
}

// StopRequest is the body of the temporary-stop operation.
type StopRequest struct {
	From string `json:"from,omitempty" doc:"Start, YYYYMMDDHHmm or YYYYMMDDHHmmss; defaults to the current hour"`
	To   string `json:"to,omitempty" doc:"End, YYYYMMDDHHmm or YYYYMMDDHHmmss"`
}

// Str formats a decoded JSON scalar without exponent notation.
func Str(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case json.Number:
		return t.String()
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case int:
		return strconv.Itoa(t)
	case int64:
		return strconv.FormatInt(t, 10)
	case bool:
		return strconv.FormatBool(t)
	default:
		return fmt.Sprint(t)
	}
}
