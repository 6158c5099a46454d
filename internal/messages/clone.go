package messages

import "maps"

// Clone returns a deep copy suitable for mutation by a single stage.
// Error, PluginState and PluginError are opaque and shared with the copy.
func (m Message) Clone() Message {
	out := m
	out.Content = m.Content.Clone()
	if m.ToolCalls != nil {
		out.ToolCalls = append([]ToolCall(nil), m.ToolCalls...)
	}
	out.Tools = cloneTools(m.Tools)
	if m.ImageList != nil {
		out.ImageList = append([]ImageItem(nil), m.ImageList...)
	}
	if m.FileList != nil {
		out.FileList = append([]FileItem(nil), m.FileList...)
	}
	if m.Plugin != nil {
		p := *m.Plugin
		out.Plugin = &p
	}
	if m.Reasoning != nil {
		r := *m.Reasoning
		out.Reasoning = &r
	}
	if m.Meta != nil {
		out.Meta = maps.Clone(m.Meta)
	}
	if m.Children != nil {
		out.Children = make([]GroupChild, len(m.Children))
		for i, c := range m.Children {
			out.Children[i] = c.Clone()
		}
	}
	return out
}

// Clone returns a deep copy of the group member.
func (c GroupChild) Clone() GroupChild {
	out := c
	out.Content = c.Content.Clone()
	out.Tools = cloneTools(c.Tools)
	if c.ImageList != nil {
		out.ImageList = append([]ImageItem(nil), c.ImageList...)
	}
	if c.Reasoning != nil {
		r := *c.Reasoning
		out.Reasoning = &r
	}
	return out
}

func cloneTools(in []ToolPayload) []ToolPayload {
	if in == nil {
		return nil
	}
	out := make([]ToolPayload, len(in))
	for i, t := range in {
		if t.Result != nil {
			r := *t.Result
			t.Result = &r
		}
		out[i] = t
	}
	return out
}

// Clone returns a deep copy of the content.
func (c Content) Clone() Content {
	if !c.IsStructured() {
		return c
	}
	parts := make([]ContentPart, len(c.Parts))
	for i, p := range c.Parts {
		if p.ImageURL != nil {
			img := *p.ImageURL
			p.ImageURL = &img
		}
		parts[i] = p
	}
	return Content{Parts: parts}
}

// CloneAll deep copies every message.
func CloneAll(in []Message) []Message {
	if in == nil {
		return nil
	}
	out := make([]Message, len(in))
	for i := range in {
		out[i] = in[i].Clone()
	}
	return out
}
