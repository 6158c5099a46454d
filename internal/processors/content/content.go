// Package content normalizes attachments into model-consumable content.
//
// DESIGN: The UI stores images and files as side lists on a message. Models
// consume them as structured content parts, so this stage rewrites:
//
//	user      text (+ file context), existing inline parts, then
//	          image_url parts for attachments (vision only)
//	assistant thinking + text when reasoning is signed,
//	          text + image_url parts when it carries images (vision only)
//
// Local image URLs are inlined as data URIs through the Resolver. Image
// fetches for a message run concurrently and are joined before the message
// is finished. A failure on any image leaves that message untouched.
package content

import (
	"context"
	"fmt"
	"sync"

	"github.com/rs/zerolog"

	"github.com/compresr/context-pipeline/internal/messages"
	"github.com/compresr/context-pipeline/internal/pipeline"
)

// Name is the stage identifier.
const Name = "message_content"

// Metadata keys written by this stage.
const (
	MetaProcessed          = "messageContentProcessed"
	MetaUserProcessed      = "userMessagesProcessed"
	MetaAssistantProcessed = "assistantMessagesProcessed"
)

// Resolver maps an image reference to the URL sent to the model.
type Resolver interface {
	Resolve(ctx context.Context, rawURL string) (string, error)
}

// Config controls normalization.
type Config struct {
	Model    string
	Provider string

	// IsCanUseVision reports vision support; nil means unsupported.
	IsCanUseVision func(model, provider string) bool

	FileContext FileContext

	// Resolver inlines local images; nil passes every URL through.
	Resolver Resolver
}

// Processor normalizes message content.
type Processor struct {
	cfg Config
}

// New creates a content processor.
func New(cfg Config) *Processor {
	return &Processor{cfg: cfg}
}

// Name returns the stage name.
func (p *Processor) Name() string { return Name }

// Process rewrites user and assistant messages.
func (p *Processor) Process(ctx context.Context, pc *pipeline.PipelineContext) (*pipeline.PipelineContext, error) {
	return pipeline.Run(ctx, Name, pc, func(ctx context.Context, out *pipeline.PipelineContext) error {
		logger := zerolog.Ctx(ctx)
		vision := p.cfg.IsCanUseVision != nil && p.cfg.IsCanUseVision(p.cfg.Model, p.cfg.Provider)

		userCount, assistantCount := 0, 0
		for i := range out.Messages {
			if err := ctx.Err(); err != nil {
				return err
			}

			msg := &out.Messages[i]
			var (
				updated messages.Message
				changed bool
				err     error
			)
			switch msg.Role {
			case messages.RoleUser:
				updated, changed, err = p.processUser(ctx, *msg, vision)
			case messages.RoleAssistant:
				updated, changed, err = p.processAssistant(ctx, *msg, vision)
			default:
				continue
			}

			if err != nil {
				logger.Warn().Err(err).
					Str("processor", Name).
					Str("message_id", msg.ID).
					Msg("content: message skipped")
				continue
			}
			if !changed {
				continue
			}

			*msg = updated
			if msg.Role == messages.RoleUser {
				userCount++
			} else {
				assistantCount++
			}
		}

		out.Metadata[MetaProcessed] = userCount + assistantCount
		out.Metadata[MetaUserProcessed] = userCount
		out.Metadata[MetaAssistantProcessed] = assistantCount
		return nil
	})
}

// =============================================================================
// USER
// =============================================================================

func (p *Processor) processUser(ctx context.Context, m messages.Message, vision bool) (messages.Message, bool, error) {
	if !m.HasAttachments() {
		return m, false, nil
	}

	text := m.Content.PlainText()
	withContext := false
	if p.cfg.FileContext.Enabled {
		if block := BuildFileContext(m.ImageList, m.FileList, p.cfg.FileContext.IncludeURL); block != "" {
			text = appendFileContext(text, block)
			withContext = true
		}
	}

	out := m.Clone()

	// Inline parts already in the content stay; only the text slot is rewritten.
	var parts []messages.ContentPart
	if out.Content.IsStructured() {
		parts = out.Content.WithText(text).Parts
	} else if text != "" {
		parts = append(parts, messages.TextPart(text))
	}

	if vision && len(m.ImageList) > 0 {
		images, err := p.resolveImages(ctx, m.ImageList)
		if err != nil {
			return m, false, err
		}
		parts = append(parts, images...)
	}

	out.ImageList = nil
	out.FileList = nil
	out.Content = buildContent(parts, withContext)
	return out, true, nil
}

// buildContent collapses a lone text part to a string unless file context
// contributed to it.
func buildContent(parts []messages.ContentPart, keepStructured bool) messages.Content {
	if len(parts) == 0 {
		return messages.Text("")
	}
	c := messages.Parts(parts...)
	if keepStructured {
		return c
	}
	return c.Collapse()
}

// =============================================================================
// ASSISTANT
// =============================================================================

func (p *Processor) processAssistant(ctx context.Context, m messages.Message, vision bool) (messages.Message, bool, error) {
	text := m.Content.PlainText()

	if m.Reasoning != nil && m.Reasoning.Signature != "" {
		out := m.Clone()
		out.ImageList = nil
		out.Content = messages.Parts(
			messages.ThinkingPart(m.Reasoning.Content, m.Reasoning.Signature),
			messages.TextPart(text),
		)
		return out, true, nil
	}

	if !vision || len(m.ImageList) == 0 {
		return m, false, nil
	}

	images, err := p.resolveImages(ctx, m.ImageList)
	if err != nil {
		return m, false, err
	}

	parts := make([]messages.ContentPart, 0, len(images)+1)
	if text != "" {
		parts = append(parts, messages.TextPart(text))
	}
	parts = append(parts, images...)

	out := m.Clone()
	out.ImageList = nil
	out.Content = messages.Parts(parts...)
	return out, true, nil
}

// =============================================================================
// IMAGES
// =============================================================================

// resolveImages fans out one resolution per image and keeps input order.
func (p *Processor) resolveImages(ctx context.Context, images []messages.ImageItem) ([]messages.ContentPart, error) {
	parts := make([]messages.ContentPart, len(images))
	errs := make([]error, len(images))

	var wg sync.WaitGroup
	for i, img := range images {
		wg.Add(1)
		go func(i int, img messages.ImageItem) {
			defer wg.Done()
			url, err := p.resolve(ctx, img.URL)
			if err != nil {
				errs[i] = fmt.Errorf("image %s: %w", img.ID, err)
				return
			}
			parts[i] = messages.ImagePart(url)
		}(i, img)
	}
	wg.Wait()

	for _, err := range errs {
		if err != nil {
			return nil, err
		}
	}
	return parts, nil
}

func (p *Processor) resolve(ctx context.Context, rawURL string) (url string, err error) {
	if rawURL == "" {
		return "", fmt.Errorf("empty url")
	}
	if p.cfg.Resolver == nil {
		return rawURL, nil
	}
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("resolver panic: %v", r)
		}
	}()
	return p.cfg.Resolver.Resolve(ctx, rawURL)
}
