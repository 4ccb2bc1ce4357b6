package docs

import (
	"bytes"
	"context"
	"embed"
	"fmt"
	"html"
	"os"
	"strings"
	"text/template"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
)

//go:embed templates/verification_letter.md
var templateFS embed.FS

// Document is a rendered artifact ready for the cache.
type Document struct {
	Filename string
	Data     []byte
	// PreserveSpaces marks a filename meant to be shown to people as is.
	PreserveSpaces bool
}

// LetterData fills the verification letter template.
type LetterData struct {
	EmployeeName   string
	LegalName      string
	Email          string
	JobTitle       string
	Manager        string
	Location       string
	HireDate       string
	WorkerType     string
	WorkdayID      string
	Today          string
	CompanyName    string
	SignatureName  string
	SignatureTitle string
}

// Renderer produces the verification letter.
type Renderer interface {
	Render(ctx context.Context, data LetterData) (Document, error)
}

// LetterRenderer renders a Markdown template to a standalone HTML page.
type LetterRenderer struct {
	tmpl *template.Template
	md   goldmark.Markdown
}

// NewLetterRenderer parses the template at path, or the built-in template
// when path is empty.
func NewLetterRenderer(path string) (*LetterRenderer, error) {
	var src []byte
	var err error
	if path != "" {
		src, err = os.ReadFile(path)
	} else {
		src, err = templateFS.ReadFile("templates/verification_letter.md")
	}
	if err != nil {
		return nil, fmt.Errorf("read letter template: %w", err)
	}

	tmpl, err := template.New("letter").
		Option("missingkey=error").
		Funcs(template.FuncMap{"md": escapeMarkdown}).
		Parse(string(src))
	if err != nil {
		return nil, fmt.Errorf("parse letter template: %w", err)
	}

	return &LetterRenderer{
		tmpl: tmpl,
		md:   goldmark.New(goldmark.WithExtensions(extension.Table)),
	}, nil
}

// Render implements Renderer.
func (r *LetterRenderer) Render(ctx context.Context, data LetterData) (Document, error) {
	if err := ctx.Err(); err != nil {
		return Document{}, err
	}
	var mdBuf bytes.Buffer
	if err := r.tmpl.Execute(&mdBuf, data); err != nil {
		return Document{}, fmt.Errorf("execute letter template: %w", err)
	}

	name := data.LegalName
	if name == "" {
		name = data.EmployeeName
	}
	if name == "" {
		name = "Employee"
	}

	var out bytes.Buffer
	fmt.Fprintf(&out, "<!DOCTYPE html>\n<html><head><meta charset=\"utf-8\"><title>Employment Verification Letter - %s</title></head><body>\n", html.EscapeString(name))
	if err := r.md.Convert(mdBuf.Bytes(), &out); err != nil {
		return Document{}, fmt.Errorf("render letter markdown: %w", err)
	}
	out.WriteString("</body></html>\n")

	return Document{
		Filename:       "Employment Verification Letter - " + name + ".html",
		Data:           out.Bytes(),
		PreserveSpaces: true,
	}, nil
}

var markdownEscaper = strings.NewReplacer(
	`\`, `\\`, "*", `\*`, "_", `\_`, "`", "\\`", "[", `\[`, "]", `\]`,
	"|", `\|`, "<", "&lt;", ">", "&gt;", "#", `\#`,
)

func escapeMarkdown(s string) string {
	return markdownEscaper.Replace(s)
}
