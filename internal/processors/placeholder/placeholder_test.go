package placeholder_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/compresr/context-pipeline/internal/messages"
	"github.com/compresr/context-pipeline/internal/pipeline"
	"github.com/compresr/context-pipeline/internal/processors/placeholder"
)

func static(s string) placeholder.Generator {
	return func() (string, error) { return s, nil }
}

func testVars() map[string]placeholder.Generator {
	return map[string]placeholder.Generator{
		"username": static("TestUser"),
		"date":     static("2023-12-25"),
		"nested":   static("Value with {{date}} inside"),
	}
}

func run(t *testing.T, cfg placeholder.Config, msgs ...messages.Message) *pipeline.PipelineContext {
	t.Helper()
	out, err := placeholder.New(cfg).Process(context.Background(), &pipeline.PipelineContext{
		Messages: msgs,
		Metadata: map[string]any{},
	})
	require.NoError(t, err)
	return out
}

// =============================================================================
// EXPANSION
// =============================================================================

func TestExpand_UnknownTokensPassThrough(t *testing.T) {
	got := placeholder.Expand("Hello {{username}}, missing: {{missing}}", testVars(), 2, nil)
	assert.Equal(t, "Hello TestUser, missing: {{missing}}", got)
}

func TestExpand_WhitespaceTolerant(t *testing.T) {
	got := placeholder.Expand("Hi {{ username }} / {{username  }}", testVars(), 2, nil)
	assert.Equal(t, "Hi TestUser / TestUser", got)
}

func TestExpand_DepthBound(t *testing.T) {
	vars := testVars()
	assert.Equal(t, "Nested: Value with {{date}} inside", placeholder.Expand("Nested: {{nested}}", vars, 1, nil))
	assert.Equal(t, "Nested: Value with 2023-12-25 inside", placeholder.Expand("Nested: {{nested}}", vars, 2, nil))
	assert.Equal(t, "Nested: Value with 2023-12-25 inside", placeholder.Expand("Nested: {{nested}}", vars, 0, nil), "0 uses default depth")
}

func TestExpand_SelfReferenceStopsAtDepth(t *testing.T) {
	vars := map[string]placeholder.Generator{"loop": static("again {{loop}}")}
	assert.Equal(t, "again again {{loop}}", placeholder.Expand("{{loop}}", vars, 2, nil))
}

func TestExpand_FailingGeneratorLeavesToken(t *testing.T) {
	vars := map[string]placeholder.Generator{
		"bad":   func() (string, error) { return "", errors.New("boom") },
		"panic": func() (string, error) { panic("boom") },
		"ok":    static("fine"),
	}
	got := placeholder.Expand("{{bad}} {{panic}} {{ok}}", vars, 2, nil)
	assert.Equal(t, "{{bad}} {{panic}} fine", got)
}

func TestExpand_ValueIsLiteral(t *testing.T) {
	vars := map[string]placeholder.Generator{"v": static(`$1 \n ${x}`)}
	assert.Equal(t, `cost: $1 \n ${x}`, placeholder.Expand("cost: {{v}}", vars, 1, nil))
}

func TestExpand_NameIsEscaped(t *testing.T) {
	vars := map[string]placeholder.Generator{"a.b": static("dot")}
	assert.Equal(t, "dot {{aXb}}", placeholder.Expand("{{a.b}} {{aXb}}", vars, 2, nil))
}

func TestRenderTemplate(t *testing.T) {
	got := placeholder.RenderTemplate("{{name}} likes {{tags}}", map[string]any{
		"name": "Ann",
		"tags": []any{"go", nil, "", "rust"},
	}, 0)
	assert.Equal(t, "Ann likes go,rust", got)
}

// =============================================================================
// PROCESSOR
// =============================================================================

func TestProcessor_StringAndStructuredContent(t *testing.T) {
	out := run(t, placeholder.Config{Variables: testVars()},
		messages.Message{Role: messages.RoleUser, Content: messages.Text("Hello {{username}}")},
		messages.Message{Role: messages.RoleUser, Content: messages.Parts(
			messages.TextPart("Date: {{ date }}"),
			messages.ImagePart("http://example.com/{{date}}.png"),
		)},
		messages.Message{Role: messages.RoleAssistant, Content: messages.Text("nothing here")},
	)

	assert.Equal(t, "Hello TestUser", out.Messages[0].Content.Text)
	parts := out.Messages[1].Content.Parts
	assert.Equal(t, "Date: 2023-12-25", parts[0].Text)
	assert.Equal(t, "http://example.com/{{date}}.png", parts[1].ImageURL.URL, "only text parts are scanned")
	assert.Equal(t, 2, out.Metadata[placeholder.MetaProcessed])
}

func TestProcessor_DoesNotMutateInput(t *testing.T) {
	part := messages.Parts(messages.TextPart("{{username}}"))
	in := &pipeline.PipelineContext{
		Messages: []messages.Message{{Role: messages.RoleUser, Content: part}},
		Metadata: map[string]any{},
	}

	_, err := placeholder.New(placeholder.Config{Variables: testVars()}).Process(context.Background(), in)
	require.NoError(t, err)
	assert.Equal(t, "{{username}}", in.Messages[0].Content.Parts[0].Text)
}

func TestProcessor_RecordsZero(t *testing.T) {
	out := run(t, placeholder.Config{}, messages.Message{Role: messages.RoleUser, Content: messages.Text("{{x}}")})
	assert.Equal(t, 0, out.Metadata[placeholder.MetaProcessed])
	assert.Equal(t, "{{x}}", out.Messages[0].Content.Text)
}

// =============================================================================
// VALUES
// =============================================================================

func TestStringify(t *testing.T) {
	type point struct {
		X int `json:"x"`
	}
	var nilPtr *point

	tests := []struct {
		name string
		in   any
		want string
	}{
		{"nil", nil, ""},
		{"nil pointer", nilPtr, ""},
		{"string", "s", "s"},
		{"int", 42, "42"},
		{"bool", true, "true"},
		{"slice", []any{1, "a", nil, []string{"x", "y"}}, "1,a,x,y"},
		{"empty elements dropped", []string{"", "a", ""}, "a"},
		{"map", map[string]any{"k": "v"}, `{"k":"v"}`},
		{"struct", point{X: 1}, `{"x":1}`},
		{"struct pointer", &point{X: 2}, `{"x":2}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, placeholder.Stringify(tt.in))
		})
	}
}

func TestFromValue(t *testing.T) {
	v, err := placeholder.FromValue(func() string { return "fn" })()
	require.NoError(t, err)
	assert.Equal(t, "fn", v)

	v, err = placeholder.FromValue(3.5)()
	require.NoError(t, err)
	assert.Equal(t, "3.5", v)
}

func TestBuiltins(t *testing.T) {
	fixed := time.Date(2023, 12, 25, 9, 30, 0, 0, time.UTC)
	vars := placeholder.Builtins(func() time.Time { return fixed })

	got := placeholder.Expand("{{date}} {{time}} {{year}}-{{month}}-{{day}} {{weekday}}", vars, 1, nil)
	assert.Equal(t, "2023-12-25 09:30:00 2023-12-25 Monday", got)

	id := placeholder.Expand("{{uuid}}", vars, 1, nil)
	_, err := uuid.Parse(id)
	assert.NoError(t, err)
}

func TestMerge_LaterWins(t *testing.T) {
	merged := placeholder.Merge(
		map[string]placeholder.Generator{"a": static("1"), "b": static("1")},
		map[string]placeholder.Generator{"b": static("2")},
	)
	assert.Equal(t, "1 2", placeholder.Expand("{{a}} {{b}}", merged, 1, nil))
}
