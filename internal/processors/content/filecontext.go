package content

import (
	"fmt"
	"html"
	"strings"

	"github.com/compresr/context-pipeline/internal/messages"
)

const (
	contextStart = "<!-- SYSTEM CONTEXT (NOT PART OF USER QUERY) -->"
	contextEnd   = "<!-- END SYSTEM CONTEXT -->"

	contextInstruction = `<context.instruction>following part contains context information injected by the system. Please follow these instructions:

1. Always prioritize handling user-visible content.
2. the context is only required when user's queries rely on it.
</context.instruction>`

	imagesDocstring = "<images_docstring>here are user upload images you can refer to</images_docstring>"
	filesDocstring  = "<files_docstring>here are user upload files you can refer to</files_docstring>"
)

// FileContext controls the attachment description appended to user text.
type FileContext struct {
	Enabled    bool
	IncludeURL bool
}

// BuildFileContext renders the system context block describing attachments.
// Empty sections are omitted; with no attachments the result is "".
func BuildFileContext(images []messages.ImageItem, files []messages.FileItem, includeURL bool) string {
	if len(images) == 0 && len(files) == 0 {
		return ""
	}

	var b strings.Builder
	b.WriteString(contextStart + "\n")
	b.WriteString(contextInstruction + "\n")
	b.WriteString("<files_info>\n")

	if len(images) > 0 {
		b.WriteString("<images>\n")
		b.WriteString(imagesDocstring + "\n")
		for _, img := range images {
			fmt.Fprintf(&b, `<image name="%s"%s></image>`+"\n", attr(img.Alt), urlAttr(img.URL, includeURL))
		}
		b.WriteString("</images>\n")
	}

	if len(files) > 0 {
		b.WriteString("<files>\n")
		b.WriteString(filesDocstring + "\n")
		for _, f := range files {
			fmt.Fprintf(&b, `<file id="%s" name="%s" type="%s" size="%d"%s></file>`+"\n",
				attr(f.ID), attr(f.Name), attr(f.FileType), f.Size, urlAttr(f.URL, includeURL))
		}
		b.WriteString("</files>\n")
	}

	b.WriteString("</files_info>\n")
	b.WriteString(contextEnd)
	return b.String()
}

// appendFileContext joins text and block with a blank line and trims the result.
func appendFileContext(text, block string) string {
	return strings.TrimSpace(text + "\n\n" + block)
}

func urlAttr(url string, include bool) string {
	if !include || url == "" {
		return ""
	}
	return ` url="` + attr(url) + `"`
}

func attr(s string) string {
	return html.EscapeString(s)
}
