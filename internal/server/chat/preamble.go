package chat

import (
	"context"
	"fmt"
	"regexp"
	"slices"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/njarm23/ClaudeMemories/internal/logging"
	"github.com/njarm23/ClaudeMemories/internal/server/models"
	"github.com/njarm23/ClaudeMemories/internal/server/repositories/repomanager"
	"github.com/njarm23/ClaudeMemories/internal/timex"
)

const (
	previewChars     = 300
	wikiPageChars    = 4000
	wikiTotalChars   = 12000
	maxWikiLinks     = 5
	discoveryQueryLn = 100
	discoveryLimit   = 3
	timeLayout       = "Monday, January 2, 2006 at 3:04 PM"
)

var (
	wikiLinkRe   = regexp.MustCompile(`\[\[([^\]]+)\]\]`)
	slugStripRe  = regexp.MustCompile(`[^\w\s-]`)
	slugSpacesRe = regexp.MustCompile(`\s+`)
)

// PreambleBuilder renders the system prompt sent with every completion.
type PreambleBuilder struct {
	rm  repomanager.RepositoryManager
	log logging.Logger
	loc *time.Location
	now func() time.Time
}

func NewPreambleBuilder(rm repomanager.RepositoryManager, log logging.Logger) *PreambleBuilder {
	return &PreambleBuilder{rm: rm, log: log.With("module", "preamble"), loc: timex.Pacific(), now: time.Now}
}

// Build joins the available sections with blank lines. A section whose
// lookup fails is left out.
func (b *PreambleBuilder) Build(ctx context.Context, conv *models.Conversation, trigger string) string {
	sections := []string{b.timeSection()}

	if s := b.vibesSection(ctx, conv); s != "" {
		sections = append(sections, s)
	}
	if conv.HandoffNotes != nil && *conv.HandoffNotes != "" {
		sections = append(sections, fmt.Sprintf(
			"[Session Handoff Notes from a previous context window. Use these to maintain continuity:\n%s\n]", *conv.HandoffNotes))
	}
	if s := b.annotationsSection(ctx, conv.ID); s != "" {
		sections = append(sections, s)
	}

	seen := map[string]bool{}
	pinned, s := b.pinnedSection(ctx, conv.ID)
	for _, id := range pinned {
		seen[id] = true
	}
	if s != "" {
		sections = append(sections, s)
	}

	linked, s := b.wikiLinkSection(ctx, trigger, seen)
	if s != "" {
		sections = append(sections, s)
	}
	for _, id := range linked {
		seen[id] = true
	}

	if s := b.discoverySection(ctx, trigger, seen); s != "" {
		sections = append(sections, s)
	}
	if conv.SystemPrompt != "" {
		sections = append(sections, conv.SystemPrompt)
	}
	return strings.Join(sections, "\n\n")
}

func (b *PreambleBuilder) timeSection() string {
	return fmt.Sprintf("[Current time: %s (Pacific Time). Be naturally aware of the time of day, day of week, "+
		"and season without explicitly stating this unless relevant.]", b.now().In(b.loc).Format(timeLayout))
}

func (b *PreambleBuilder) vibesSection(ctx context.Context, conv *models.Conversation) string {
	vibes, err := conv.ParsedVibes()
	if err != nil {
		b.log.Debug(ctx, "ignoring malformed vibes", "conversation_id", conv.ID, "error", err)
		return ""
	}
	if len(vibes) == 0 {
		return ""
	}
	return fmt.Sprintf("[Conversation context: The energy of this conversation has been %s. "+
		"Match this tone naturally without explicitly mentioning these vibes.]", strings.Join(vibes, ", "))
}

func (b *PreambleBuilder) annotationsSection(ctx context.Context, conversationID string) string {
	annotated, err := b.rm.Annotations(b.rm.Transactor().Conn()).ListAnnotatedMessages(ctx, conversationID)
	if err != nil {
		b.log.Warn(ctx, "annotations section skipped", "error", err)
		return ""
	}
	if len(annotated) == 0 {
		return ""
	}

	lines := make([]string, 0, len(annotated))
	for _, a := range annotated {
		role := "Assistant"
		if a.Role == models.RoleUser {
			role = "User"
		}
		note := ""
		if a.Label != nil && *a.Label != "" {
			note = fmt.Sprintf(" (Note: \"%s\")", *a.Label)
		}
		preview := a.Preview
		if utf8.RuneCountInString(preview) >= previewChars {
			preview, _ = truncateRunes(preview, previewChars)
			preview += "..."
		}
		lines = append(lines, fmt.Sprintf("- %s (%s)%s: \"%s\"", annotationLabel(a.Type), role, note, preview))
	}
	return "[User-annotated messages. The user has marked these as important. Reference them naturally " +
		"when relevant, but don't list them unprompted:\n" + strings.Join(lines, "\n") + "\n]"
}

func annotationLabel(t string) string {
	switch t {
	case models.AnnotationPin:
		return "📌 Pinned"
	case models.AnnotationBookmark:
		return "🔖 Bookmarked"
	default:
		return "⭐ Highlighted"
	}
}

func (b *PreambleBuilder) pinnedSection(ctx context.Context, conversationID string) ([]string, string) {
	pages, err := b.rm.Wiki(b.rm.Transactor().Conn()).Pinned(ctx, conversationID)
	if err != nil {
		b.log.Warn(ctx, "pinned wiki section skipped", "error", err)
		return nil, ""
	}
	ids := make([]string, 0, len(pages))
	for _, p := range pages {
		ids = append(ids, p.ID)
	}
	if len(pages) == 0 {
		return ids, ""
	}

	var parts []string
	total := 0
	for _, p := range pages {
		if total >= wikiTotalChars {
			break
		}
		body, cut := truncateRunes(p.Content, wikiPageChars)
		if cut {
			body += "\n\n...[truncated, full page available in wiki]"
		}
		parts = append(parts, "### "+p.Title+"\n"+body)
		total += utf8.RuneCountInString(body)
	}
	return ids, "[Pinned Wiki Pages. The user has pinned these knowledge base articles to this conversation. " +
		"Reference them when relevant:\n\n" + strings.Join(parts, "\n\n---\n\n") + "\n]"
}

func (b *PreambleBuilder) wikiLinkSection(ctx context.Context, trigger string, skip map[string]bool) ([]string, string) {
	matches := wikiLinkRe.FindAllStringSubmatch(trigger, -1)
	if len(matches) == 0 {
		return nil, ""
	}
	if len(matches) > maxWikiLinks {
		matches = matches[:maxWikiLinks]
	}

	repo := b.rm.Wiki(b.rm.Transactor().Conn())
	var ids, parts []string
	total := 0
	for _, m := range matches {
		if total >= wikiTotalChars {
			break
		}
		title := strings.TrimSpace(m[1])
		p, err := repo.FindByTitleOrSlug(ctx, title, Slugify(title))
		if err != nil {
			b.log.Debug(ctx, "wikilink not resolved", "link", title, "error", err)
			continue
		}
		if skip[p.ID] || slices.Contains(ids, p.ID) {
			continue
		}
		ids = append(ids, p.ID)
		body, cut := truncateRunes(p.Content, wikiPageChars)
		if cut {
			body += "\n\n...[truncated]"
		}
		parts = append(parts, "### "+p.Title+"\n"+body)
		total += utf8.RuneCountInString(body)
	}
	if len(parts) == 0 {
		return ids, ""
	}
	return ids, "[Wiki pages referenced by user with [[wikilinks]]. They are asking about these:\n\n" +
		strings.Join(parts, "\n\n---\n\n") + "\n]"
}

func (b *PreambleBuilder) discoverySection(ctx context.Context, trigger string, skip map[string]bool) string {
	q, _ := truncateRunes(strings.TrimSpace(trigger), discoveryQueryLn)
	if q == "" {
		return ""
	}
	exclude := make([]string, 0, len(skip))
	for id := range skip {
		exclude = append(exclude, id)
	}
	pages, err := b.rm.Wiki(b.rm.Transactor().Conn()).Search(ctx, q, exclude, discoveryLimit)
	if err != nil {
		b.log.Debug(ctx, "wiki discovery skipped", "error", err)
		return ""
	}

	var lines []string
	for _, p := range pages {
		if skip[p.ID] {
			continue
		}
		line := fmt.Sprintf("- \"%s\"", p.Title)
		if p.Summary != nil && *p.Summary != "" {
			line += ": " + *p.Summary
		}
		lines = append(lines, line)
	}
	if len(lines) == 0 {
		return ""
	}
	return "[Potentially relevant wiki pages (the user can pin them for full content if needed):\n" +
		strings.Join(lines, "\n") + "\n]"
}

// Slugify lowercases s, drops punctuation and joins words with dashes.
func Slugify(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	s = slugStripRe.ReplaceAllString(s, "")
	return slugSpacesRe.ReplaceAllString(s, "-")
}

// truncateRunes cuts s to n runes and reports whether it did.
func truncateRunes(s string, n int) (string, bool) {
	if utf8.RuneCountInString(s) <= n {
		return s, false
	}
	r := []rune(s)
	return string(r[:n]), true
}
