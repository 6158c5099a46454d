package messages

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
)

// PartType discriminates content parts.
type PartType string

const (
	PartText     PartType = "text"
	PartImageURL PartType = "image_url"
	PartThinking PartType = "thinking"
)

// DetailAuto is the image detail level used for every generated image part.
const DetailAuto = "auto"

// ImageURL is the payload of an image_url part.
type ImageURL struct {
	URL    string `json:"url"`
	Detail string `json:"detail,omitempty"`
}

// ContentPart is one element of structured content.
type ContentPart struct {
	Type      PartType
	Text      string
	ImageURL  *ImageURL
	Thinking  string
	Signature string
}

// TextPart builds a text part.
func TextPart(text string) ContentPart {
	return ContentPart{Type: PartText, Text: text}
}

// ImagePart builds an image_url part with detail "auto".
func ImagePart(url string) ContentPart {
	return ContentPart{Type: PartImageURL, ImageURL: &ImageURL{URL: url, Detail: DetailAuto}}
}

// ThinkingPart builds a thinking part.
func ThinkingPart(thinking, signature string) ContentPart {
	return ContentPart{Type: PartThinking, Thinking: thinking, Signature: signature}
}

// MarshalJSON emits exactly the fields of the part's type.
func (p ContentPart) MarshalJSON() ([]byte, error) {
	switch p.Type {
	case PartText:
		return json.Marshal(struct {
			Type PartType `json:"type"`
			Text string   `json:"text"`
		}{p.Type, p.Text})
	case PartImageURL:
		img := p.ImageURL
		if img == nil {
			img = &ImageURL{}
		}
		return json.Marshal(struct {
			Type     PartType  `json:"type"`
			ImageURL *ImageURL `json:"image_url"`
		}{p.Type, img})
	case PartThinking:
		return json.Marshal(struct {
			Type      PartType `json:"type"`
			Thinking  string   `json:"thinking"`
			Signature string   `json:"signature,omitempty"`
		}{p.Type, p.Thinking, p.Signature})
	default:
		return nil, fmt.Errorf("unknown content part type %q", p.Type)
	}
}

// UnmarshalJSON decodes any of the known part shapes.
func (p *ContentPart) UnmarshalJSON(data []byte) error {
	var raw struct {
		Type      PartType  `json:"type"`
		Text      string    `json:"text"`
		ImageURL  *ImageURL `json:"image_url"`
		Thinking  string    `json:"thinking"`
		Signature string    `json:"signature"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	*p = ContentPart{
		Type:      raw.Type,
		Text:      raw.Text,
		ImageURL:  raw.ImageURL,
		Thinking:  raw.Thinking,
		Signature: raw.Signature,
	}
	return nil
}

// Content is either plain text or an ordered list of parts.
// A non-nil Parts slice means the content is structured.
type Content struct {
	Text  string
	Parts []ContentPart
}

// Text builds plain-string content.
func Text(s string) Content {
	return Content{Text: s}
}

// Parts builds structured content. A nil argument still yields structured content.
func Parts(parts ...ContentPart) Content {
	if parts == nil {
		parts = []ContentPart{}
	}
	return Content{Parts: parts}
}

// IsStructured reports whether the content is a part list.
func (c Content) IsStructured() bool {
	return c.Parts != nil
}

// PlainText returns the string content, or the text parts joined by newlines.
func (c Content) PlainText() string {
	if !c.IsStructured() {
		return c.Text
	}
	var texts []string
	for _, p := range c.Parts {
		if p.Type == PartText {
			texts = append(texts, p.Text)
		}
	}
	return strings.Join(texts, "\n")
}

// HasText reports whether the content carries any text: a plain string, or at
// least one text part.
func (c Content) HasText() bool {
	if !c.IsStructured() {
		return true
	}
	for _, p := range c.Parts {
		if p.Type == PartText {
			return true
		}
	}
	return false
}

// WithText replaces the text of c with s. Structured content keeps every
// non-text part where it was; s takes the place of the first text part, or
// goes first when there is none. An empty s drops the text parts.
func (c Content) WithText(s string) Content {
	if !c.IsStructured() {
		return Text(s)
	}
	parts := make([]ContentPart, 0, len(c.Parts)+1)
	placed := s == ""
	for _, p := range c.Parts {
		if p.Type != PartText {
			parts = append(parts, p)
			continue
		}
		if !placed {
			parts = append(parts, TextPart(s))
			placed = true
		}
	}
	if !placed {
		parts = append([]ContentPart{TextPart(s)}, parts...)
	}
	return Parts(parts...)
}

// Collapse turns a single remaining text part back into a plain string.
func (c Content) Collapse() Content {
	if len(c.Parts) == 1 && c.Parts[0].Type == PartText {
		return Text(c.Parts[0].Text)
	}
	return c
}

// Equal reports deep equality of two contents.
func (c Content) Equal(o Content) bool {
	if c.IsStructured() != o.IsStructured() {
		return false
	}
	if !c.IsStructured() {
		return c.Text == o.Text
	}
	if len(c.Parts) != len(o.Parts) {
		return false
	}
	for i := range c.Parts {
		a, b := c.Parts[i], o.Parts[i]
		if a.Type != b.Type || a.Text != b.Text || a.Thinking != b.Thinking || a.Signature != b.Signature {
			return false
		}
		if (a.ImageURL == nil) != (b.ImageURL == nil) {
			return false
		}
		if a.ImageURL != nil && *a.ImageURL != *b.ImageURL {
			return false
		}
	}
	return true
}

// MarshalJSON encodes structured content as an array and plain content as a string.
func (c Content) MarshalJSON() ([]byte, error) {
	if c.IsStructured() {
		return json.Marshal(c.Parts)
	}
	return json.Marshal(c.Text)
}

// UnmarshalJSON accepts a string, an array of parts, or null.
func (c *Content) UnmarshalJSON(data []byte) error {
	trimmed := bytes.TrimSpace(data)
	switch {
	case len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")):
		*c = Content{}
		return nil
	case trimmed[0] == '"':
		var s string
		if err := json.Unmarshal(trimmed, &s); err != nil {
			return err
		}
		*c = Text(s)
		return nil
	case trimmed[0] == '[':
		var parts []ContentPart
		if err := json.Unmarshal(trimmed, &parts); err != nil {
			return err
		}
		*c = Parts(parts...)
		return nil
	default:
		return fmt.Errorf("content must be a string or an array of parts")
	}
}
