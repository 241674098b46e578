// Package chunk splits extracted sections into retrieval-sized passages.
package chunk

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/sells-group/finloom/internal/config"
	"github.com/sells-group/finloom/internal/model"
)

var (
	paragraphSplitRe = regexp.MustCompile(`\n{2,}`)
	sentenceEndRe    = regexp.MustCompile(`[.!?]["')\]]?\s+`)
	digitRe          = regexp.MustCompile(`\d`)
	tableRowRe       = regexp.MustCompile(`(?m)^\s*\|.*\|\s*$`)
	listItemRe       = regexp.MustCompile(`(?m)^\s*(?:[-*•]|\d+\.)\s+\S`)
)

// Chunker splits section text on paragraph, then sentence, then token
// boundaries, keeping chunks between MinTokens and MaxTokens with
// OverlapTokens of trailing context repeated at each boundary.
type Chunker struct {
	target  int
	min     int
	max     int
	overlap int
}

// New builds a Chunker, applying defaults for unset fields.
func New(cfg config.ChunkingConfig) *Chunker {
	c := &Chunker{
		target:  cfg.TargetTokens,
		min:     cfg.MinTokens,
		max:     cfg.MaxTokens,
		overlap: cfg.OverlapTokens,
	}
	if c.target <= 0 {
		c.target = 750
	}
	if c.min <= 0 {
		c.min = 500
	}
	if c.max <= 0 {
		c.max = 1000
	}
	if c.overlap < 0 {
		c.overlap = 100
	}
	return c
}

// CountTokens approximates model tokenization by whitespace word count.
func CountTokens(text string) int {
	return len(strings.Fields(text))
}

// span is a half-open [start,end) byte range into the section text.
type span struct {
	start, end int
	tokens     int
}

// Split chunks one section. Chunk ids follow
// {accession}_{section_item}_{index} and indexes start at startIndex so a
// filing's chunk_index is continuous across its sections.
func (c *Chunker) Split(sec *model.Section, startIndex int) []*model.Chunk {
	text := sec.ContentText
	if strings.TrimSpace(text) == "" {
		return nil
	}

	spans := c.applyOverlap(text, c.assemble(c.paragraphSpans(text)))

	chunks := make([]*model.Chunk, 0, len(spans))
	for i, sp := range spans {
		chunkText := text[sp.start:sp.end]
		chunks = append(chunks, &model.Chunk{
			ChunkID:         fmt.Sprintf("%s_%s_%d", sec.AccessionNumber, sec.SectionType, startIndex+i),
			AccessionNumber: sec.AccessionNumber,
			SectionItem:     string(sec.SectionType),
			SectionTitle:    sec.Title,
			ChunkIndex:      startIndex + i,
			TokenCount:      CountTokens(chunkText),
			CharStart:       sp.start,
			CharEnd:         sp.end,
			Text:            chunkText,
			ContainsTables:  tableRowRe.MatchString(chunkText),
			ContainsLists:   listItemRe.MatchString(chunkText),
			ContainsNumbers: digitRe.MatchString(chunkText),
		})
	}
	return chunks
}

// SplitFiling chunks every section of a filing with a continuous index.
func (c *Chunker) SplitFiling(sections []*model.Section) []*model.Chunk {
	var all []*model.Chunk
	for _, sec := range sections {
		chunks := c.Split(sec, len(all))
		all = append(all, chunks...)
	}
	return all
}

// paragraphSpans yields one span per paragraph, breaking any paragraph over
// the max size at sentence (then token) boundaries first.
func (c *Chunker) paragraphSpans(text string) []span {
	var spans []span
	prev := 0
	emit := func(start, end int) {
		seg := text[start:end]
		if strings.TrimSpace(seg) == "" {
			return
		}
		tokens := CountTokens(seg)
		if tokens <= c.max {
			spans = append(spans, span{start: start, end: end, tokens: tokens})
			return
		}
		spans = append(spans, c.splitOversized(text, start, end)...)
	}
	for _, m := range paragraphSplitRe.FindAllStringIndex(text, -1) {
		emit(prev, m[0])
		prev = m[1]
	}
	emit(prev, len(text))
	return spans
}

// splitOversized breaks one huge paragraph at sentence boundaries, packing
// sentences up to the target size. A single sentence over max falls back to
// plain token windows.
func (c *Chunker) splitOversized(text string, start, end int) []span {
	para := text[start:end]

	var sentences []span
	prev := start
	for _, m := range sentenceEndRe.FindAllStringIndex(para, -1) {
		sentences = append(sentences, span{start: prev, end: start + m[1]})
		prev = start + m[1]
	}
	if prev < end {
		sentences = append(sentences, span{start: prev, end: end})
	}

	var out []span
	for _, s := range sentences {
		s.tokens = CountTokens(text[s.start:s.end])
		if s.tokens > c.max {
			out = append(out, c.tokenWindows(text, s.start, s.end)...)
			continue
		}
		if n := len(out); n > 0 && out[n-1].tokens < c.target && out[n-1].tokens+s.tokens <= c.max {
			out[n-1].end = s.end
			out[n-1].tokens += s.tokens
			continue
		}
		out = append(out, s)
	}
	return out
}

// tokenWindows slices [start,end) into windows of about target tokens.
func (c *Chunker) tokenWindows(text string, start, end int) []span {
	var out []span
	winStart := start
	tokens := 0
	i := start
	for i < end {
		for i < end && isSpace(text[i]) {
			i++
		}
		if i >= end {
			break
		}
		for i < end && !isSpace(text[i]) {
			i++
		}
		tokens++
		if tokens >= c.target {
			out = append(out, span{start: winStart, end: i, tokens: tokens})
			winStart = i
			tokens = 0
		}
	}
	if tokens > 0 {
		out = append(out, span{start: winStart, end: end, tokens: tokens})
	}
	return out
}

// assemble packs paragraph-level spans into chunks near the target size.
// A chunk closes once it reaches target or when the next unit would push it
// past max. An undersized final chunk folds into its predecessor when the
// combined size stays within max.
func (c *Chunker) assemble(units []span) []span {
	var out []span
	for _, u := range units {
		if n := len(out); n > 0 && out[n-1].tokens < c.target && out[n-1].tokens+u.tokens <= c.max {
			out[n-1].end = u.end
			out[n-1].tokens += u.tokens
			continue
		}
		out = append(out, u)
	}

	if n := len(out); n >= 2 && out[n-1].tokens < c.min && out[n-2].tokens+out[n-1].tokens <= c.max {
		out[n-2].end = out[n-1].end
		out[n-2].tokens += out[n-1].tokens
		out = out[:n-1]
	}
	return out
}

// applyOverlap extends each chunk after the first backward so it repeats
// the last overlap tokens of its predecessor.
func (c *Chunker) applyOverlap(text string, spans []span) []span {
	if c.overlap == 0 || len(spans) < 2 {
		return spans
	}
	for i := 1; i < len(spans); i++ {
		prev := spans[i-1]
		newStart := backupTokens(text, prev.start, prev.end, c.overlap)
		if newStart < spans[i].start {
			spans[i].start = newStart
		}
	}
	return spans
}

// backupTokens walks backward from end until count whitespace-delimited
// words have been crossed, never passing start.
func backupTokens(text string, start, end, count int) int {
	i := end
	words := 0
	for i > start && words < count {
		for i > start && isSpace(text[i-1]) {
			i--
		}
		j := i
		for j > start && !isSpace(text[j-1]) {
			j--
		}
		if j < i {
			words++
		}
		i = j
	}
	return i
}

func isSpace(b byte) bool {
	return b == ' ' || b == '\n' || b == '\t' || b == '\r'
}
