// Package placeholder expands {{ variable }} tokens in message content.
//
// DESIGN: Multi-pass, bounded resolution:
//  1. Extract the token names currently present
//  2. Drop names without a generator (left verbatim)
//  3. Replace the rest literally
//  4. Repeat while a pass changed something, up to Depth passes
//
// A generator's own output may contain further tokens; they are resolved by
// the next pass. A failing generator leaves its token literal.
package placeholder

import (
	"context"
	"fmt"
	"regexp"

	"github.com/rs/zerolog"

	"github.com/compresr/context-pipeline/internal/messages"
	"github.com/compresr/context-pipeline/internal/pipeline"
)

// Name is the stage identifier.
const Name = "placeholder_variables"

// MetaProcessed counts messages whose content changed.
const MetaProcessed = "placeholderVariablesProcessed"

// DefaultDepth is the number of passes when Config.Depth is unset.
const DefaultDepth = 2

// tokenPattern matches {{ name }} with flexible whitespace.
var tokenPattern = regexp.MustCompile(`\{\{\s*([\w.\-]+)\s*\}\}`)

// Generator produces a variable's value on demand.
type Generator func() (string, error)

// Config holds the variable vocabulary.
type Config struct {
	Variables map[string]Generator
	Depth     int // 0 = DefaultDepth
}

// Processor expands placeholders in string content and text parts.
type Processor struct {
	vars  map[string]Generator
	depth int
}

// New creates a placeholder processor.
func New(cfg Config) *Processor {
	depth := cfg.Depth
	if depth <= 0 {
		depth = DefaultDepth
	}
	return &Processor{vars: cfg.Variables, depth: depth}
}

// Name returns the stage name.
func (p *Processor) Name() string { return Name }

// Process expands tokens in every message.
func (p *Processor) Process(ctx context.Context, pc *pipeline.PipelineContext) (*pipeline.PipelineContext, error) {
	return pipeline.Run(ctx, Name, pc, func(ctx context.Context, out *pipeline.PipelineContext) error {
		logger := zerolog.Ctx(ctx)
		processed := 0

		for i := range out.Messages {
			msg := &out.Messages[i]
			content, changed := p.expandContent(msg.Content, logger)
			if !changed {
				continue
			}
			updated := msg.Clone()
			updated.Content = content
			*msg = updated
			processed++
		}

		out.Metadata[MetaProcessed] = processed
		return nil
	})
}

func (p *Processor) expandContent(c messages.Content, logger *zerolog.Logger) (messages.Content, bool) {
	if !c.IsStructured() {
		s := Expand(c.Text, p.vars, p.depth, logger)
		return messages.Text(s), s != c.Text
	}

	changed := false
	parts := make([]messages.ContentPart, len(c.Parts))
	for i, part := range c.Parts {
		if part.Type == messages.PartText {
			if s := Expand(part.Text, p.vars, p.depth, logger); s != part.Text {
				part.Text = s
				changed = true
			}
		}
		parts[i] = part
	}
	if !changed {
		return c, false
	}
	return messages.Content{Parts: parts}, true
}

// Expand resolves tokens in s for at most depth passes.
// logger may be nil.
func Expand(s string, vars map[string]Generator, depth int, logger *zerolog.Logger) string {
	if depth <= 0 {
		depth = DefaultDepth
	}

	result := s
	for pass := 0; pass < depth; pass++ {
		names := extractNames(result)
		if len(names) == 0 {
			break
		}

		next := result
		for _, name := range names {
			gen, ok := vars[name]
			if !ok {
				continue
			}
			value, err := call(gen)
			if err != nil {
				if logger != nil {
					logger.Debug().Err(err).Str("variable", name).Msg("placeholder: generator failed")
				}
				continue
			}
			next = tokenFor(name).ReplaceAllLiteralString(next, value)
		}

		if next == result {
			break
		}
		result = next
	}
	return result
}

// RenderTemplate expands tokens in tpl using plain values.
func RenderTemplate(tpl string, values map[string]any, depth int) string {
	vars := make(map[string]Generator, len(values))
	for k, v := range values {
		vars[k] = FromValue(v)
	}
	return Expand(tpl, vars, depth, nil)
}

func extractNames(s string) []string {
	matches := tokenPattern.FindAllStringSubmatch(s, -1)
	if len(matches) == 0 {
		return nil
	}
	seen := make(map[string]bool, len(matches))
	names := make([]string, 0, len(matches))
	for _, m := range matches {
		if !seen[m[1]] {
			seen[m[1]] = true
			names = append(names, m[1])
		}
	}
	return names
}

func tokenFor(name string) *regexp.Regexp {
	return regexp.MustCompile(`\{\{\s*` + regexp.QuoteMeta(name) + `\s*\}\}`)
}

// call runs a generator, turning a panic into an error.
func call(gen Generator) (value string, err error) {
	if gen == nil {
		return "", fmt.Errorf("nil generator")
	}
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("generator panic: %v", r)
		}
	}()
	return gen()
}
