package mailer

import (
	"bytes"
	"embed"
	"fmt"
	htmltmpl "html/template"
	"io/fs"
	"path"
	"strings"
	"sync"
	texttmpl "text/template"
)

//go:embed templates/*
var templateFS embed.FS

const (
	TemplateRevisionNeeded = "revision_needed"
	TemplateWeeklyDigest   = "weekly_digest"
)

type templateSet struct {
	text *texttmpl.Template
	html *htmltmpl.Template
}

var (
	templatesOnce sync.Once
	templates     map[string]templateSet
	templatesErr  error
)

func parseTemplates() {
	templates = make(map[string]templateSet)
	entries, err := fs.ReadDir(templateFS, "templates")
	if err != nil {
		templatesErr = fmt.Errorf("read email templates: %w", err)
		return
	}
	for _, entry := range entries {
		name := entry.Name()
		ext := path.Ext(name)
		base := strings.TrimSuffix(name, ext)
		set := templates[base]
		file := path.Join("templates", name)
		switch ext {
		case ".txt":
			set.text, err = texttmpl.New(name).Option("missingkey=error").ParseFS(templateFS, file)
		case ".gohtml":
			set.html, err = htmltmpl.New(name).Option("missingkey=error").ParseFS(templateFS, file)
		default:
			continue
		}
		if err != nil {
			templatesErr = fmt.Errorf("parse email template %s: %w", name, err)
			return
		}
		templates[base] = set
	}
}

// Render executes the named template pair and fills the message bodies.
func (m *Message) Render(name string, data interface{}) error {
	templatesOnce.Do(parseTemplates)
	if templatesErr != nil {
		return templatesErr
	}
	set, ok := templates[name]
	if !ok {
		return fmt.Errorf("unknown email template %q", name)
	}
	if set.text != nil {
		var buf bytes.Buffer
		if err := set.text.Execute(&buf, data); err != nil {
			return fmt.Errorf("render %s text: %w", name, err)
		}
		m.Text = buf.String()
	}
	if set.html != nil {
		var buf bytes.Buffer
		if err := set.html.Execute(&buf, data); err != nil {
			return fmt.Errorf("render %s html: %w", name, err)
		}
		m.HTML = buf.String()
	}
	return nil
}

// RevisionNeededData feeds the revision_needed template.
type RevisionNeededData struct {
	StudentName    string
	InstructorName string
	RecordID       string
	Date           string
	Topic          string
	Comments       string
	RecordURL      string
}

// DigestRecord is one unsigned record listed in the weekly digest.
type DigestRecord struct {
	Date        string
	StudentName string
	Topic       string
	Duration    string
}

// WeeklyDigestData feeds the weekly_digest template.
type WeeklyDigestData struct {
	InstructorName string
	Count          int
	Records        []DigestRecord
	SiteURL        string
}
