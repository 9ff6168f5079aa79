package snapshot

import (
	"bytes"
	"fmt"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

type frontmatter struct {
	Title       string   `yaml:"title"`
	Model       string   `yaml:"model"`
	Temperature float64  `yaml:"temperature"`
	Created     string   `yaml:"created"`
	Exported    string   `yaml:"exported"`
	Messages    int      `yaml:"messages"`
	Tags        []string `yaml:"tags,omitempty,flow"`
	Vibes       []string `yaml:"vibes,omitempty,flow"`
	Summary     string   `yaml:"summary,omitempty"`
}

// Markdown renders doc with a YAML frontmatter block. Times are shown in loc.
func (d *Document) Markdown(loc *time.Location) ([]byte, error) {
	fm := frontmatter{
		Title:       d.Conversation.Title,
		Model:       d.Conversation.Model,
		Temperature: d.Conversation.Temperature,
		Created:     d.Conversation.CreatedAt.Format(time.RFC3339),
		Exported:    d.ExportedAt.Format(time.RFC3339),
		Messages:    len(d.Messages),
		Vibes:       d.Conversation.Vibes,
	}
	for _, t := range d.Conversation.Tags {
		fm.Tags = append(fm.Tags, t.Name)
	}
	if d.Conversation.Summary != nil {
		fm.Summary = *d.Conversation.Summary
	}
	head, err := yaml.Marshal(fm)
	if err != nil {
		return nil, fmt.Errorf("render frontmatter: %w", err)
	}

	var b bytes.Buffer
	b.WriteString("---\n")
	b.Write(head)
	b.WriteString("---\n\n")
	fmt.Fprintf(&b, "# %s\n\n", d.Conversation.Title)

	for _, m := range d.Messages {
		role := "Claude"
		if m.Role == "user" {
			role = "User"
		}
		fmt.Fprintf(&b, "## %s · %s%s\n\n", role, m.CreatedAt.In(loc).Format("Jan 2, 3:04 PM"), annotationSuffix(m.Annotation))

		if len(m.Images) > 0 {
			for _, img := range m.Images {
				name := img.Filename
				if name == "" {
					name = "image-" + img.ID
				}
				fmt.Fprintf(&b, "![%s](%s)\n", name, img.URL)
			}
			b.WriteString("\n")
		}
		if len(m.Files) > 0 {
			for _, f := range m.Files {
				name := f.Filename
				if name == "" {
					name = "file-" + f.ID
				}
				fmt.Fprintf(&b, "📎 [%s](%s) (%s)\n", name, f.URL, humanSize(f.SizeBytes))
			}
			b.WriteString("\n")
		}
		b.WriteString(m.Content)
		b.WriteString("\n\n")
	}
	return bytes.TrimRight(b.Bytes(), "\n"), nil
}

func annotationSuffix(a *Annotation) string {
	if a == nil {
		return ""
	}
	var sb strings.Builder
	switch a.Type {
	case "pin":
		sb.WriteString(" 📌")
	case "bookmark":
		sb.WriteString(" 🔖")
	default:
		sb.WriteString(" ⭐")
	}
	if a.Label != nil && *a.Label != "" {
		sb.WriteString(" " + *a.Label)
	}
	return sb.String()
}

func humanSize(n int64) string {
	if n < 1024 {
		return fmt.Sprintf("%dB", n)
	}
	return fmt.Sprintf("%.0fKB", float64(n)/1024)
}
