package messages

import "fmt"

// Validate checks the structural shape of a message list once at the
// pipeline boundary. Unknown roles are allowed and pass through stages.
func Validate(msgs []Message) error {
	for i := range msgs {
		if err := validateMessage(&msgs[i]); err != nil {
			return fmt.Errorf("message[%d] %s: %w", i, msgs[i].ID, err)
		}
	}
	return nil
}

func validateMessage(m *Message) error {
	if m.Role == "" {
		return fmt.Errorf("role is required")
	}
	for j, p := range m.Content.Parts {
		switch p.Type {
		case PartText, PartThinking:
		case PartImageURL:
			if p.ImageURL == nil || p.ImageURL.URL == "" {
				return fmt.Errorf("content part %d: image_url requires a url", j)
			}
		default:
			return fmt.Errorf("content part %d: unknown type %q", j, p.Type)
		}
	}
	return nil
}
