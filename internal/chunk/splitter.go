package chunk

import (
	"context"
	"log/slog"
	"regexp"
	"strings"

	"github.com/vaultscope/vaultscope/internal/meta"
	"github.com/vaultscope/vaultscope/internal/token"
)

// sectionHeadingLevel is the deepest heading level that starts a new
// section. Deeper headings stay inside their section and are only used
// when an oversized section needs a subordinate split.
const sectionHeadingLevel = 3

var (
	headingPattern = regexp.MustCompile(`^(#{1,6})\s+(.+)$`)
	fencePattern   = regexp.MustCompile("^(```|~~~)")
)

// Splitter turns a document's text into an ordered chunk sequence.
type Splitter struct {
	codec token.Codec
	opts  Options
}

// NewSplitter creates a splitter using the given token codec.
func NewSplitter(codec token.Codec, opts Options) *Splitter {
	return &Splitter{codec: codec, opts: opts.withDefaults()}
}

// Split produces the ordered chunks covering content. Document metadata
// is copied onto every chunk. Content is expected to have frontmatter
// already removed by the metadata extractor.
func (s *Splitter) Split(ctx context.Context, path, content string, dm meta.DocumentMeta) ([]*Chunk, error) {
	if strings.TrimSpace(content) == "" {
		return nil, nil
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	sections := parseSections(content, sectionHeadingLevel)
	if len(sections) == 0 {
		// Malformed or heading-free markup: degrade to one section.
		slog.Debug("no structural headings found, treating document as one section",
			slog.String("path", path))
		sections = []*section{{body: content}}
	}

	var chunks []*Chunk
	ordinal := 0
	for _, sec := range sections {
		for _, piece := range s.sectionPieces(sec) {
			c := &Chunk{
				ID:          ChunkID(path, piece.headingPath, ordinal),
				Path:        path,
				Heading:     piece.heading,
				HeadingPath: piece.headingPath,
				Ordinal:     ordinal,
				Text:        piece.text,
				TokenCount:  piece.tokens,
				WordCount:   len(strings.Fields(piece.text)),
				CharCount:   len(piece.text),
				Oversize:    piece.oversize,
				Tags:        dm.Tags,
				Frontmatter: dm.Frontmatter,
				Modified:    dm.Modified,
			}
			chunks = append(chunks, c)
			ordinal++
		}
	}

	return chunks, nil
}

// section is a heading-delimited region of the document.
type section struct {
	level       int    // 0 for preamble
	heading     string // heading text, "" for preamble
	headingPath string // "H1 > H2"
	body        string // section text including the heading line
}

// piece is one chunk-to-be produced from a section.
type piece struct {
	heading     string
	headingPath string
	text        string
	tokens      int
	oversize    bool
}

// parseSections scans line by line. Headings at or above maxLevel start
// a new section; everything until the next such heading belongs to it.
// Headings inside fenced code blocks are ignored.
func parseSections(content string, maxLevel int) []*section {
	lines := strings.Split(content, "\n")
	stack := make([]string, maxLevel)

	var sections []*section
	var current *section
	var body strings.Builder
	inFence := false

	flush := func() {
		if current == nil {
			if body.Len() > 0 {
				sections = append(sections, &section{body: body.String()})
			}
		} else {
			current.body = body.String()
			sections = append(sections, current)
		}
		body.Reset()
	}

	for _, line := range lines {
		if fencePattern.MatchString(strings.TrimSpace(line)) {
			inFence = !inFence
		}

		match := headingPattern.FindStringSubmatch(line)
		if !inFence && match != nil && len(match[1]) <= maxLevel {
			if current != nil || body.Len() > 0 {
				flush()
			}

			level := len(match[1])
			heading := strings.TrimSpace(match[2])

			stack[level-1] = heading
			for i := level; i < maxLevel; i++ {
				stack[i] = ""
			}

			var parts []string
			for i := 0; i < level; i++ {
				if stack[i] != "" {
					parts = append(parts, stack[i])
				}
			}

			current = &section{
				level:       level,
				heading:     heading,
				headingPath: strings.Join(parts, " > "),
			}
		}

		body.WriteString(line)
		body.WriteString("\n")
	}
	if current != nil || strings.TrimSpace(body.String()) != "" {
		flush()
	}

	return sections
}

// sectionPieces turns one section into chunk pieces, applying the size
// split when the section exceeds the maximum.
func (s *Splitter) sectionPieces(sec *section) []piece {
	text := strings.TrimRight(sec.body, "\n")
	if !sectionHasContent(text) {
		return nil
	}

	count := s.codec.Count(text)
	if count <= s.opts.MaxTokens {
		return []piece{{
			heading:     sec.heading,
			headingPath: sec.headingPath,
			text:        text,
			tokens:      count,
		}}
	}

	// First try subordinate headings (level 4+).
	var pieces []piece
	for _, sub := range subSections(text, sectionHeadingLevel) {
		heading := sec.heading
		headingPath := sec.headingPath
		if sub.heading != "" {
			heading = sub.heading
			if headingPath != "" {
				headingPath += " > " + sub.heading
			} else {
				headingPath = sub.heading
			}
		}

		subText := strings.TrimRight(sub.body, "\n")
		if !sectionHasContent(subText) {
			continue
		}

		subCount := s.codec.Count(subText)
		if subCount <= s.opts.MaxTokens {
			pieces = append(pieces, piece{
				heading:     heading,
				headingPath: headingPath,
				text:        subText,
				tokens:      subCount,
			})
			continue
		}

		// Still oversized: sliding token window over the subsection.
		pieces = append(pieces, s.windowPieces(heading, headingPath, subText)...)
	}

	return pieces
}

// subSections splits a section body at headings deeper than maxLevel.
// Content before the first subordinate heading forms the leading
// subsection with an empty heading.
func subSections(body string, maxLevel int) []*section {
	lines := strings.Split(body, "\n")

	var subs []*section
	current := &section{}
	var sb strings.Builder
	inFence := false

	for _, line := range lines {
		if fencePattern.MatchString(strings.TrimSpace(line)) {
			inFence = !inFence
		}

		match := headingPattern.FindStringSubmatch(line)
		if !inFence && match != nil && len(match[1]) > maxLevel {
			current.body = sb.String()
			subs = append(subs, current)
			sb.Reset()
			current = &section{
				level:   len(match[1]),
				heading: strings.TrimSpace(match[2]),
			}
		}

		sb.WriteString(line)
		sb.WriteString("\n")
	}
	current.body = sb.String()
	subs = append(subs, current)

	return subs
}

// windowPieces slides a fixed-size token window across text. Each
// window yields one piece; the next window starts OverlapTokens before
// the previous window's end, never before the start of the text.
// Fenced code blocks larger than the window are indivisible: they are
// emitted whole and flagged oversize.
func (s *Splitter) windowPieces(heading, headingPath, text string) []piece {
	var pieces []piece

	for _, seg := range splitFences(text) {
		segText := strings.TrimRight(seg.text, "\n")
		if !sectionHasContent(segText) {
			continue
		}

		tokens := s.codec.Encode(segText)
		if seg.atomic && len(tokens) > s.opts.MaxTokens {
			pieces = append(pieces, piece{
				heading:     heading,
				headingPath: headingPath,
				text:        segText,
				tokens:      len(tokens),
				oversize:    true,
			})
			continue
		}

		step := s.opts.MaxTokens - s.opts.OverlapTokens
		for start := 0; start < len(tokens); start += step {
			end := start + s.opts.MaxTokens
			if end > len(tokens) {
				end = len(tokens)
			}

			window := strings.TrimSpace(s.codec.Decode(tokens[start:end]))
			if window != "" {
				pieces = append(pieces, piece{
					heading:     heading,
					headingPath: headingPath,
					text:        window,
					tokens:      end - start,
				})
			}

			if end == len(tokens) {
				break
			}
		}
	}

	return pieces
}

// fenceSegment is a run of text that is either free-form prose or a
// fenced code block that must not be cut mid-window.
type fenceSegment struct {
	text   string
	atomic bool
}

// splitFences separates fenced code blocks from surrounding prose.
// An unclosed fence swallows the rest of the text, which matches how
// renderers treat malformed markup.
func splitFences(text string) []fenceSegment {
	lines := strings.Split(text, "\n")

	var segs []fenceSegment
	var sb strings.Builder
	inFence := false

	flush := func(atomic bool) {
		if sb.Len() > 0 {
			segs = append(segs, fenceSegment{text: sb.String(), atomic: atomic})
			sb.Reset()
		}
	}

	for _, line := range lines {
		if fencePattern.MatchString(strings.TrimSpace(line)) {
			if !inFence {
				flush(false)
				inFence = true
			} else {
				sb.WriteString(line)
				sb.WriteString("\n")
				inFence = false
				flush(true)
				continue
			}
		}
		sb.WriteString(line)
		sb.WriteString("\n")
	}
	flush(inFence)

	return segs
}

// sectionHasContent reports whether text contains anything beyond a
// bare heading line.
func sectionHasContent(text string) bool {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return false
	}
	lines := strings.Split(trimmed, "\n")
	if len(lines) == 1 && headingPattern.MatchString(lines[0]) {
		return false
	}
	return true
}
