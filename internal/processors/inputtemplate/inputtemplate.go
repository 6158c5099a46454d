// Package inputtemplate wraps user messages in a configured input template.
//
// DESIGN: The template is Go text/template syntax where {{text}} expands to
// the message's current text. It is compiled once per run:
//   - compile failure     → no message is touched, count 0
//   - execution failure   → that message keeps its original content
//
// Only user messages are rendered. Structured content is rendered over its
// joined text parts; image and thinking parts stay in place.
package inputtemplate

import (
	"context"
	"strings"
	"text/template"

	"github.com/rs/zerolog"

	"github.com/compresr/context-pipeline/internal/messages"
	"github.com/compresr/context-pipeline/internal/pipeline"
)

// Name is the stage identifier.
const Name = "input_template"

// MetaProcessed counts user messages whose content changed.
const MetaProcessed = "inputTemplateProcessed"

// Config holds the template source. Empty means disabled.
type Config struct {
	InputTemplate string
}

// Processor applies the input template.
type Processor struct {
	cfg Config
}

// New creates an input template processor.
func New(cfg Config) *Processor {
	return &Processor{cfg: cfg}
}

// Name returns the stage name.
func (p *Processor) Name() string { return Name }

// Process renders every user message through the template.
func (p *Processor) Process(ctx context.Context, pc *pipeline.PipelineContext) (*pipeline.PipelineContext, error) {
	return pipeline.Run(ctx, Name, pc, func(ctx context.Context, out *pipeline.PipelineContext) error {
		if p.cfg.InputTemplate == "" {
			return nil
		}
		logger := zerolog.Ctx(ctx)

		tmpl, err := Compile(p.cfg.InputTemplate)
		if err != nil {
			logger.Warn().Err(err).Msg("input_template: compile failed, skipping")
			out.Metadata[MetaProcessed] = 0
			return nil
		}

		processed := 0
		for i := range out.Messages {
			msg := &out.Messages[i]
			if msg.Role != messages.RoleUser {
				continue
			}

			// image-only content has no text to wrap
			if !msg.Content.HasText() {
				continue
			}

			text := msg.Content.PlainText()
			rendered, err := Render(tmpl, text)
			if err != nil {
				logger.Warn().Err(err).Str("message_id", msg.ID).Msg("input_template: render failed, keeping original")
				continue
			}
			if rendered == text {
				continue
			}

			updated := msg.Clone()
			updated.Content = updated.Content.WithText(rendered)
			*msg = updated
			processed++
		}

		out.Metadata[MetaProcessed] = processed
		return nil
	})
}

// Compile parses src; {{text}} is bound to the message text at render time.
func Compile(src string) (*template.Template, error) {
	return template.New(Name).
		Option("missingkey=error").
		Funcs(template.FuncMap{"text": func() string { return "" }}).
		Parse(src)
}

// Render executes a compiled template with text bound to {{text}}.
func Render(tmpl *template.Template, text string) (string, error) {
	t, err := tmpl.Clone()
	if err != nil {
		return "", err
	}
	t.Funcs(template.FuncMap{"text": func() string { return text }})

	var sb strings.Builder
	if err := t.Execute(&sb, nil); err != nil {
		return "", err
	}
	return sb.String(), nil
}
