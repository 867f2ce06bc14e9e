package document

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"postforge/internal/core"
)

const delimiter = "---"

// Document is a post file: a YAML metadata header followed by a markdown body.
// The header text is kept verbatim so later stages never rewrite it.
type Document struct {
	Path  string
	Front core.Frontmatter
	Body  *Body

	rawFront string
}

// New builds a document from frontmatter and body text.
func New(front core.Frontmatter, body string) (*Document, error) {
	raw, err := yaml.Marshal(front)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal frontmatter: %w", err)
	}
	b, err := ParseBody(body)
	if err != nil {
		return nil, err
	}
	return &Document{Front: front, Body: b, rawFront: string(raw)}, nil
}

// Parse reads a document from its serialized form.
func Parse(data []byte) (*Document, error) {
	text := strings.ReplaceAll(string(data), "\r\n", "\n")
	if !strings.HasPrefix(text, delimiter+"\n") {
		return nil, fmt.Errorf("missing frontmatter delimiter")
	}
	rest := text[len(delimiter)+1:]

	var rawFront, body string
	if strings.HasPrefix(rest, delimiter+"\n") {
		body = rest[len(delimiter)+1:]
	} else {
		idx := strings.Index(rest, "\n"+delimiter+"\n")
		if idx < 0 {
			if !strings.HasSuffix(rest, "\n"+delimiter) {
				return nil, fmt.Errorf("unterminated frontmatter")
			}
			idx = len(rest) - len(delimiter) - 1
			rawFront = rest[:idx+1]
		} else {
			rawFront = rest[:idx+1]
			body = rest[idx+len(delimiter)+2:]
		}
	}

	var front core.Frontmatter
	if err := yaml.Unmarshal([]byte(rawFront), &front); err != nil {
		return nil, fmt.Errorf("invalid frontmatter: %w", err)
	}
	if front.Slug == "" {
		return nil, fmt.Errorf("frontmatter has no slug")
	}

	b, err := ParseBody(body)
	if err != nil {
		return nil, err
	}
	return &Document{Front: front, Body: b, rawFront: rawFront}, nil
}

// Bytes serializes the document.
func (d *Document) Bytes() []byte {
	var buf bytes.Buffer
	buf.WriteString(delimiter + "\n")
	buf.WriteString(d.rawFront)
	buf.WriteString(delimiter + "\n")
	buf.WriteString(d.Body.String())
	return buf.Bytes()
}

// ReadFile parses the document stored at path.
func ReadFile(path string) (*Document, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	doc, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", filepath.Base(path), err)
	}
	doc.Path = path
	return doc, nil
}

// Save writes the document to d.Path atomically, creating parent directories.
func (d *Document) Save() error {
	if d.Path == "" {
		return fmt.Errorf("document %s has no path", d.Front.Slug)
	}
	if err := os.MkdirAll(filepath.Dir(d.Path), 0755); err != nil {
		return fmt.Errorf("failed to create directory for %s: %w", d.Front.Slug, err)
	}
	return WriteFileAtomic(d.Path, d.Bytes(), 0644)
}

// WriteFileAtomic writes data to a file atomically by writing to a temporary
// file first, fsyncing, and then renaming it to the target path.
func WriteFileAtomic(path string, data []byte, perm os.FileMode) error {
	tmp := path + ".tmp"
	f, err := os.OpenFile(tmp, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, perm)
	if err != nil {
		return err
	}
	if _, err := f.Write(data); err != nil {
		f.Close()
		os.Remove(tmp)
		return err
	}
	if err := f.Sync(); err != nil {
		f.Close()
		os.Remove(tmp)
		return err
	}
	if err := f.Close(); err != nil {
		os.Remove(tmp)
		return err
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return err
	}
	return nil
}
