// Package chunking implements Chunker (spec.md §4.5): a recursive text
// splitter with configurable size, overlap, and per-language separator
// tables. Style (a Service wrapping a compiled separator/pattern table,
// built once in a constructor) follows the teacher's chunking package
// conventions; the splitting algorithm itself is new, generalized for
// arbitrary document content rather than chat transcripts.
package chunking

import "strings"

// Language selects a separator table tuned to a content family.
type Language string

const (
	LanguageSource   Language = "source"
	LanguageMarkup   Language = "markup"
	LanguagePlain    Language = "plain"
)

// Config bounds the splitter.
type Config struct {
	ChunkSize    int
	ChunkOverlap int
	Language     Language
}

// separatorTables lists separators from coarsest to finest; the splitter
// tries each in turn until pieces fit within ChunkSize.
var separatorTables = map[Language][]string{
	LanguageSource: {"\n\n\n", "\n\n", "\nfunc ", "\nclass ", "\ndef ", "\n}\n", "\n", " ", ""},
	LanguageMarkup: {"\n## ", "\n### ", "\n\n", "</div>", "</p>", "\n", " ", ""},
	LanguagePlain:  {"\n\n", "\n", ". ", " ", ""},
}

// Service splits document content into an ordered list of overlapping
// chunks.
type Service struct {
	cfg Config
}

// NewService builds a Service with documented defaults applied where the
// caller left zero values.
func NewService(cfg Config) *Service {
	if cfg.ChunkSize <= 0 {
		cfg.ChunkSize = 1000
	}
	if cfg.ChunkOverlap < 0 {
		cfg.ChunkOverlap = 0
	}
	if cfg.ChunkOverlap >= cfg.ChunkSize {
		cfg.ChunkOverlap = cfg.ChunkSize / 5
	}
	if cfg.Language == "" {
		cfg.Language = LanguagePlain
	}
	return &Service{cfg: cfg}
}

// Split returns content divided into non-empty chunks, adjacent chunks
// overlapping by up to ChunkOverlap characters. A chunk holds at most
// ChunkSize runes of new content plus the carried overlap, so it can reach
// ChunkSize+ChunkOverlap runes. Content no longer than ChunkSize yields a
// single chunk equal to the input.
func (s *Service) Split(content string) []string {
	if len([]rune(content)) <= s.cfg.ChunkSize {
		if strings.TrimSpace(content) == "" {
			return nil
		}
		return []string{content}
	}

	separators := separatorTables[s.cfg.Language]
	pieces := s.recursiveSplit(content, separators)
	return mergeWithOverlap(pieces, s.cfg.ChunkSize, s.cfg.ChunkOverlap)
}

// recursiveSplit breaks content on the first separator that yields pieces
// individually small enough (or the last separator, "", which always
// succeeds by falling back to rune slicing).
func (s *Service) recursiveSplit(content string, separators []string) []string {
	if len(separators) == 0 {
		return splitByRunes(content, s.cfg.ChunkSize)
	}

	sep := separators[0]
	rest := separators[1:]

	if sep == "" {
		return splitByRunes(content, s.cfg.ChunkSize)
	}

	parts := strings.Split(content, sep)
	var pieces []string
	for i, p := range parts {
		if i < len(parts)-1 {
			p += sep
		}
		if p == "" {
			continue
		}
		if len([]rune(p)) > s.cfg.ChunkSize {
			pieces = append(pieces, s.recursiveSplit(p, rest)...)
		} else {
			pieces = append(pieces, p)
		}
	}
	return pieces
}

func splitByRunes(content string, size int) []string {
	runes := []rune(content)
	var out []string
	for i := 0; i < len(runes); i += size {
		end := i + size
		if end > len(runes) {
			end = len(runes)
		}
		out = append(out, string(runes[i:end]))
	}
	return out
}

// mergeWithOverlap packs consecutive pieces into chunks up to size,
// carrying the trailing overlap characters of one chunk into the next; the
// carried prefix is not counted against size, so a chunk can reach
// size+overlap runes.
func mergeWithOverlap(pieces []string, size, overlap int) []string {
	var chunks []string
	var current strings.Builder

	flush := func() {
		text := current.String()
		if strings.TrimSpace(text) != "" {
			chunks = append(chunks, text)
		}
		current.Reset()
	}

	for _, p := range pieces {
		if current.Len() > 0 && len([]rune(current.String()))+len([]rune(p)) > size {
			carry := tailRunes(current.String(), overlap)
			flush()
			current.WriteString(carry)
		}
		current.WriteString(p)
	}
	flush()

	return chunks
}

func tailRunes(s string, n int) string {
	r := []rune(s)
	if n <= 0 || n >= len(r) {
		return ""
	}
	return string(r[len(r)-n:])
}
