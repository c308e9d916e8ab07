package usecase

import (
	"fmt"
	"strings"

	"github.com/kirillkom/medhelp-assistant/internal/core/domain"
)

const (
	knowledgeBaseSourcesHeader  = "**Sources (knowledge base):**"
	generalKnowledgeSourcesHead = "**Sources (general medical knowledge, not from our knowledge base):**"
)

// SourceFormatter turns generated text plus retrieval sources into the user-facing
// attribution block.
type SourceFormatter struct {
	approved          []domain.ApprovedDomain
	authoritativeSite string
}

func NewSourceFormatter(policy domain.RetrievalPolicy) *SourceFormatter {
	site := strings.TrimSpace(policy.AuthoritativeSite)
	if site == "" {
		site = domain.DefaultRetrievalPolicy().AuthoritativeSite
	}
	return &SourceFormatter{
		approved:          policy.ApprovedDomains,
		authoritativeSite: site,
	}
}

func (f *SourceFormatter) Format(text string, sources []string, meta domain.AnswerMetadata) (string, []string) {
	if !meta.IsInDomain {
		return text, sources
	}

	if meta.UsedGroundedContext {
		deduped := dedupeSources(sources)
		if len(deduped) == 0 {
			return text, deduped
		}
		var b strings.Builder
		b.WriteString(strings.TrimRight(text, "\n"))
		b.WriteString("\n\n")
		b.WriteString(knowledgeBaseSourcesHeader)
		for _, src := range deduped {
			b.WriteString("\n- ")
			b.WriteString(f.label(src))
		}
		return b.String(), deduped
	}

	section, ok := parseSourcesSection(text)
	if !ok {
		return strings.TrimRight(text, "\n") + "\n\n" + f.disclaimer(), []string{}
	}

	deduped := dedupeSources(section.items)
	lines := strings.Split(text, "\n")
	rebuilt := make([]string, 0, len(lines))
	rebuilt = append(rebuilt, lines[:section.header]...)
	rebuilt = append(rebuilt, generalKnowledgeSourcesHead)
	for _, item := range deduped {
		rebuilt = append(rebuilt, "- "+item)
	}
	rebuilt = append(rebuilt, lines[section.end:]...)
	return strings.Join(rebuilt, "\n"), deduped
}

func (f *SourceFormatter) label(source string) string {
	entry, ok := matchApprovedDomain(source, f.approved)
	if !ok || strings.TrimSpace(entry.Label) == "" {
		return source
	}
	return fmt.Sprintf("%s: %s", entry.Label, source)
}

func (f *SourceFormatter) disclaimer() string {
	return fmt.Sprintf(
		"_This answer is based on general medical knowledge, not on our curated knowledge base. "+
			"For authoritative guidance please visit %s or speak to a healthcare professional._",
		f.authoritativeSite,
	)
}

var markdownEmphasis = strings.NewReplacer("*", "", "_", "")

type sourcesSection struct {
	header int // line index of the "Sources:" header
	end    int // first line index after the dash lines
	items  []string
}

// parseSourcesSection finds the first "Sources:" header and the dash lines that directly
// follow it.
func parseSourcesSection(text string) (sourcesSection, bool) {
	lines := strings.Split(text, "\n")
	for i, line := range lines {
		if !isSourcesHeader(line) {
			continue
		}
		section := sourcesSection{header: i, end: i + 1}
		for j := i + 1; j < len(lines); j++ {
			trimmed := strings.TrimSpace(lines[j])
			if !strings.HasPrefix(trimmed, "-") {
				break
			}
			if item := strings.TrimSpace(strings.TrimPrefix(trimmed, "-")); item != "" {
				section.items = append(section.items, item)
			}
			section.end = j + 1
		}
		if len(section.items) == 0 {
			return sourcesSection{}, false
		}
		return section, true
	}
	return sourcesSection{}, false
}

func isSourcesHeader(line string) bool {
	trimmed := strings.TrimLeft(strings.TrimSpace(line), "#")
	trimmed = markdownEmphasis.Replace(trimmed)
	return strings.EqualFold(strings.TrimSpace(trimmed), "sources:")
}

// dedupeSources drops blanks and repeats, keeping first-seen order.
func dedupeSources(sources []string) []string {
	out := make([]string, 0, len(sources))
	seen := make(map[string]struct{}, len(sources))
	for _, src := range sources {
		key := strings.TrimSpace(src)
		if key == "" {
			continue
		}
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, key)
	}
	return out
}
