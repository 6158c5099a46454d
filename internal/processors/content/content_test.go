package content_test

import (
	"context"
	"errors"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/compresr/context-pipeline/internal/imagefetch"
	"github.com/compresr/context-pipeline/internal/messages"
	"github.com/compresr/context-pipeline/internal/pipeline"
	"github.com/compresr/context-pipeline/internal/processors/content"
)

func vision(enabled bool) func(string, string) bool {
	return func(string, string) bool { return enabled }
}

func process(t *testing.T, cfg content.Config, msgs ...messages.Message) *pipeline.PipelineContext {
	t.Helper()
	out, err := content.New(cfg).Process(context.Background(), &pipeline.PipelineContext{
		Messages: msgs,
		Metadata: map[string]any{},
	})
	require.NoError(t, err)
	return out
}

func userWithImage(url string) messages.Message {
	return messages.Message{
		ID:        "test",
		Role:      messages.RoleUser,
		Content:   messages.Text("Hello"),
		ImageList: []messages.ImageItem{{ID: "img1", URL: url, Alt: "test.png"}},
	}
}

// =============================================================================
// USER
// =============================================================================

func TestUser_VisionDisabledKeepsPlainText(t *testing.T) {
	var gotModel, gotProvider string
	cfg := content.Config{Model: "text-model", Provider: "openai", IsCanUseVision: func(m, p string) bool {
		gotModel, gotProvider = m, p
		return false
	}}

	out := process(t, cfg, userWithImage("http://example.com/image.jpg"))

	assert.Equal(t, "text-model", gotModel)
	assert.Equal(t, "openai", gotProvider)
	msg := out.Messages[0]
	assert.Equal(t, messages.Text("Hello"), msg.Content)
	assert.Nil(t, msg.ImageList)
}

func TestUser_VisionAddsImageParts(t *testing.T) {
	out := process(t, content.Config{IsCanUseVision: vision(true)}, userWithImage("http://example.com/image.jpg"))

	assert.Equal(t, messages.Parts(
		messages.TextPart("Hello"),
		messages.ImagePart("http://example.com/image.jpg"),
	), out.Messages[0].Content)
	assert.Equal(t, messages.DetailAuto, out.Messages[0].Content.Parts[1].ImageURL.Detail)
}

type stubResolver struct {
	calls atomic.Int32
	fail  string
}

func (s *stubResolver) Resolve(_ context.Context, rawURL string) (string, error) {
	s.calls.Add(1)
	if rawURL == s.fail {
		return "", errors.New("unreachable")
	}
	if imagefetch.IsLocalURL(rawURL) {
		return "data:image/png;base64,base64-data", nil
	}
	return rawURL, nil
}

func TestUser_LocalImageInlined(t *testing.T) {
	cfg := content.Config{IsCanUseVision: vision(true), Resolver: &stubResolver{}}
	out := process(t, cfg, userWithImage("http://127.0.0.1:3000/image.png"))

	parts := out.Messages[0].Content.Parts
	require.Len(t, parts, 2)
	assert.Equal(t, "data:image/png;base64,base64-data", parts[1].ImageURL.URL)
}

func TestUser_ImagesKeepOrder(t *testing.T) {
	msg := messages.Message{
		Role:    messages.RoleUser,
		Content: messages.Text("look"),
		ImageList: []messages.ImageItem{
			{ID: "1", URL: "http://example.com/1.png"},
			{ID: "2", URL: "http://127.0.0.1/2.png"},
			{ID: "3", URL: "http://example.com/3.png"},
		},
	}
	resolver := &stubResolver{}
	out := process(t, content.Config{IsCanUseVision: vision(true), Resolver: resolver}, msg)

	parts := out.Messages[0].Content.Parts
	require.Len(t, parts, 4)
	assert.Equal(t, "http://example.com/1.png", parts[1].ImageURL.URL)
	assert.Equal(t, "data:image/png;base64,base64-data", parts[2].ImageURL.URL)
	assert.Equal(t, "http://example.com/3.png", parts[3].ImageURL.URL)
	assert.Equal(t, int32(3), resolver.calls.Load())
}

func TestUser_FileContextEnabled(t *testing.T) {
	msg := userWithImage("http://example.com/image.jpg")
	msg.FileList = []messages.FileItem{{ID: "file1", Name: "test.txt", FileType: "text/plain", Size: 100, URL: "http://example.com/test.txt"}}

	out := process(t, content.Config{IsCanUseVision: vision(false), FileContext: content.FileContext{Enabled: true}}, msg)

	c := out.Messages[0].Content
	require.True(t, c.IsStructured(), "file context keeps structured content")
	require.Len(t, c.Parts, 1)
	assert.Equal(t, messages.PartText, c.Parts[0].Type)
	assert.True(t, strings.HasPrefix(c.Parts[0].Text, "Hello\n\n<!-- SYSTEM CONTEXT (NOT PART OF USER QUERY) -->"))
	assert.Contains(t, c.Parts[0].Text, `<file id="file1" name="test.txt" type="text/plain" size="100"></file>`)
	assert.Nil(t, out.Messages[0].FileList)
}

func TestUser_FileContextDisabled(t *testing.T) {
	msg := messages.Message{
		Role:     messages.RoleUser,
		Content:  messages.Text("Hello"),
		FileList: []messages.FileItem{{ID: "file1", Name: "test.txt"}},
	}
	out := process(t, content.Config{IsCanUseVision: vision(false)}, msg)
	assert.Equal(t, messages.Text("Hello"), out.Messages[0].Content)
}

func TestUser_NoAttachmentsUntouched(t *testing.T) {
	msg := messages.Message{Role: messages.RoleUser, Content: messages.Text("Hi"), ToolCallID: "x"}
	out := process(t, content.Config{IsCanUseVision: vision(true), FileContext: content.FileContext{Enabled: true}}, msg)

	assert.Equal(t, msg, out.Messages[0])
	assert.Equal(t, 0, out.Metadata[content.MetaProcessed])
}

func TestUser_FailedImageLeavesMessage(t *testing.T) {
	msg := messages.Message{
		Role:    messages.RoleUser,
		Content: messages.Text("two images"),
		ImageList: []messages.ImageItem{
			{ID: "ok", URL: "http://example.com/ok.png"},
			{ID: "bad", URL: "http://127.0.0.1/bad.png"},
		},
	}
	other := userWithImage("http://example.com/fine.png")

	cfg := content.Config{IsCanUseVision: vision(true), Resolver: &stubResolver{fail: "http://127.0.0.1/bad.png"}}
	out := process(t, cfg, msg, other)

	assert.Equal(t, msg, out.Messages[0])
	assert.True(t, out.Messages[1].Content.IsStructured())
	assert.Equal(t, 1, out.Metadata[content.MetaUserProcessed])
}

func TestUser_KeepsInlineImageParts(t *testing.T) {
	msg := messages.Message{
		Role: messages.RoleUser,
		Content: messages.Parts(
			messages.TextPart("compare these"),
			messages.ImagePart("http://example.com/inline.png"),
		),
		FileList:  []messages.FileItem{{ID: "file1", Name: "notes.txt", FileType: "text/plain", Size: 10}},
		ImageList: []messages.ImageItem{{ID: "img1", URL: "http://example.com/attached.png"}},
	}
	cfg := content.Config{IsCanUseVision: vision(true), FileContext: content.FileContext{Enabled: true}}
	out := process(t, cfg, msg)

	parts := out.Messages[0].Content.Parts
	require.Len(t, parts, 3)
	assert.Equal(t, messages.PartText, parts[0].Type)
	assert.True(t, strings.HasPrefix(parts[0].Text, "compare these\n\n"))
	assert.Contains(t, parts[0].Text, `name="notes.txt"`)
	assert.Equal(t, "http://example.com/inline.png", parts[1].ImageURL.URL)
	assert.Equal(t, "http://example.com/attached.png", parts[2].ImageURL.URL)
	assert.Nil(t, out.Messages[0].FileList)
	assert.Nil(t, out.Messages[0].ImageList)
}

// =============================================================================
// ASSISTANT
// =============================================================================

func TestAssistant_ImagesWithText(t *testing.T) {
	msg := messages.Message{
		Role:      messages.RoleAssistant,
		Content:   messages.Text("Here is an image."),
		ImageList: []messages.ImageItem{{ID: "img1", URL: "http://example.com/image.png"}},
	}
	out := process(t, content.Config{IsCanUseVision: vision(true)}, msg)

	assert.Equal(t, messages.Parts(
		messages.TextPart("Here is an image."),
		messages.ImagePart("http://example.com/image.png"),
	), out.Messages[0].Content)
}

func TestAssistant_ImagesWithoutText(t *testing.T) {
	msg := messages.Message{
		Role:      messages.RoleAssistant,
		Content:   messages.Text(""),
		ImageList: []messages.ImageItem{{ID: "img1", URL: "http://example.com/image.png"}},
	}
	out := process(t, content.Config{IsCanUseVision: vision(true)}, msg)

	assert.Equal(t, messages.Parts(messages.ImagePart("http://example.com/image.png")), out.Messages[0].Content)
}

func TestAssistant_ImagesIgnoredWithoutVision(t *testing.T) {
	msg := messages.Message{
		Role:      messages.RoleAssistant,
		Content:   messages.Text("Here"),
		ImageList: []messages.ImageItem{{ID: "img1", URL: "http://example.com/image.png"}},
	}
	out := process(t, content.Config{}, msg)
	assert.Equal(t, msg, out.Messages[0])
}

func TestAssistant_SignedReasoning(t *testing.T) {
	msg := messages.Message{
		Role:      messages.RoleAssistant,
		Content:   messages.Text("The answer is 42."),
		Reasoning: &messages.Reasoning{Content: "I need to calculate.", Signature: "thinking_process"},
		ToolCalls: []messages.ToolCall{{ID: "call_1", Type: "function"}},
	}
	out := process(t, content.Config{}, msg)

	got := out.Messages[0]
	assert.Equal(t, messages.Parts(
		messages.ThinkingPart("I need to calculate.", "thinking_process"),
		messages.TextPart("The answer is 42."),
	), got.Content)
	assert.Equal(t, msg.ToolCalls, got.ToolCalls)
}

func TestAssistant_SignedReasoningDropsAttachments(t *testing.T) {
	msg := messages.Message{
		Role:      messages.RoleAssistant,
		Content:   messages.Text("done"),
		Reasoning: &messages.Reasoning{Content: "plan", Signature: "sig"},
		ImageList: []messages.ImageItem{{ID: "img1", URL: "http://example.com/image.png"}},
	}
	out := process(t, content.Config{IsCanUseVision: vision(true)}, msg)

	got := out.Messages[0]
	assert.Nil(t, got.ImageList)
	require.Len(t, got.Content.Parts, 2)
	assert.Equal(t, messages.PartThinking, got.Content.Parts[0].Type)
	assert.NotNil(t, msg.ImageList, "input message is not mutated")
}

func TestAssistant_UnsignedReasoningPassesThrough(t *testing.T) {
	msg := messages.Message{
		Role:      messages.RoleAssistant,
		Content:   messages.Text("answer"),
		Reasoning: &messages.Reasoning{Content: "thoughts"},
	}
	out := process(t, content.Config{}, msg)
	assert.Equal(t, messages.Text("answer"), out.Messages[0].Content)
}

// =============================================================================
// METADATA
// =============================================================================

func TestMetadataCounts(t *testing.T) {
	user := userWithImage("http://example.com/image.jpg")
	user.FileList = []messages.FileItem{{ID: "file1", Name: "test.txt"}}
	assistant := messages.Message{
		Role:      messages.RoleAssistant,
		Content:   messages.Text("Response"),
		Reasoning: &messages.Reasoning{Content: "Thinking...", Signature: "thinking"},
	}

	out := process(t, content.Config{IsCanUseVision: vision(false), FileContext: content.FileContext{Enabled: true}},
		user, assistant, messages.Message{Role: messages.RoleSystem, Content: messages.Text("sys")})

	assert.Equal(t, 2, out.Metadata[content.MetaProcessed])
	assert.Equal(t, 1, out.Metadata[content.MetaUserProcessed])
	assert.Equal(t, 1, out.Metadata[content.MetaAssistantProcessed])
}

func TestProcess_DoesNotMutateInput(t *testing.T) {
	in := &pipeline.PipelineContext{
		Messages: []messages.Message{userWithImage("http://example.com/image.jpg")},
		Metadata: map[string]any{},
	}
	_, err := content.New(content.Config{IsCanUseVision: vision(true)}).Process(context.Background(), in)
	require.NoError(t, err)

	assert.Len(t, in.Messages[0].ImageList, 1)
	assert.Equal(t, messages.Text("Hello"), in.Messages[0].Content)
}

// =============================================================================
// FILE CONTEXT
// =============================================================================

func TestBuildFileContext(t *testing.T) {
	images := []messages.ImageItem{{ID: "img", URL: "http://example.com/image.jpg", Alt: "abc.png"}}
	files := []messages.FileItem{{ID: "file1", Name: "abc.png", FileType: "plain/txt", Size: 100000, URL: "http://abc.com/abc.txt"}}

	want := `<!-- SYSTEM CONTEXT (NOT PART OF USER QUERY) -->
<context.instruction>following part contains context information injected by the system. Please follow these instructions:

1. Always prioritize handling user-visible content.
2. the context is only required when user's queries rely on it.
</context.instruction>
<files_info>
<images>
<images_docstring>here are user upload images you can refer to</images_docstring>
<image name="abc.png" url="http://example.com/image.jpg"></image>
</images>
<files>
<files_docstring>here are user upload files you can refer to</files_docstring>
<file id="file1" name="abc.png" type="plain/txt" size="100000" url="http://abc.com/abc.txt"></file>
</files>
</files_info>
<!-- END SYSTEM CONTEXT -->`

	assert.Equal(t, want, content.BuildFileContext(images, files, true))
}

func TestBuildFileContext_OmitsEmptySections(t *testing.T) {
	assert.Empty(t, content.BuildFileContext(nil, nil, true))

	got := content.BuildFileContext(nil, []messages.FileItem{{ID: "f", Name: "a.txt", URL: "http://x/a.txt"}}, false)
	assert.NotContains(t, got, "<images>")
	assert.NotContains(t, got, "url=")
	assert.Contains(t, got, `<file id="f" name="a.txt" type="" size="0"></file>`)
}
