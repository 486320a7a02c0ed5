package models

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
)

type Section struct {
	Name    string
	Content string
}

// Sections keeps headings in insertion order with their original case.
// Lookups are case-insensitive. It encodes as a JSON object in order.
type Sections []Section

func (s Sections) index(name string) int {
	for i, sec := range s {
		if strings.EqualFold(sec.Name, name) {
			return i
		}
	}
	return -1
}

func (s Sections) Get(name string) (string, bool) {
	if i := s.index(name); i >= 0 {
		return s[i].Content, true
	}
	return "", false
}

func (s Sections) Has(name string) bool {
	return s.index(name) >= 0
}

// Set replaces an existing section (keeping its position and case) or appends.
func (s *Sections) Set(name, content string) {
	if i := s.index(name); i >= 0 {
		(*s)[i].Content = content
		return
	}
	*s = append(*s, Section{Name: name, Content: content})
}

func (s Sections) Names() []string {
	names := make([]string, len(s))
	for i, sec := range s {
		names[i] = sec.Name
	}
	return names
}

// PrependToFirst puts text in front of the first section's content.
func (s Sections) PrependToFirst(text string) {
	if len(s) == 0 {
		return
	}
	s[0].Content = text + "\n\n" + s[0].Content
}

func (s Sections) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, sec := range s {
		if i > 0 {
			buf.WriteByte(',')
		}
		key, err := json.Marshal(sec.Name)
		if err != nil {
			return nil, err
		}
		val, err := json.Marshal(sec.Content)
		if err != nil {
			return nil, err
		}
		buf.Write(key)
		buf.WriteByte(':')
		buf.Write(val)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

func (s *Sections) UnmarshalJSON(data []byte) error {
	dec := json.NewDecoder(bytes.NewReader(data))

	tok, err := dec.Token()
	if err != nil {
		return err
	}
	if tok == nil {
		*s = nil
		return nil
	}
	if d, ok := tok.(json.Delim); !ok || d != '{' {
		return fmt.Errorf("sections: expected object, got %v", tok)
	}

	var out Sections
	for dec.More() {
		keyTok, err := dec.Token()
		if err != nil {
			return err
		}
		key, _ := keyTok.(string)
		var content string
		if err := dec.Decode(&content); err != nil {
			return fmt.Errorf("sections: %q: %w", key, err)
		}
		out.Set(key, content)
	}
	if _, err := dec.Token(); err != nil {
		return err
	}
	*s = out
	return nil
}
