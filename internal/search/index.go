// Package search ranks the passages of a résumé against a keyword query.
// It backs the extractive profile used when the text-generation service
// cannot write one.
//
// An index is immutable after construction and safe for concurrent use.
// Scoring is the Jaccard similarity between the query token set and each
// passage's token set: score = |Q ∩ P| / |Q ∪ P|. Ties break on shorter
// passages, then lexically, so results are deterministic.
package search

import (
	"regexp"
	"sort"
	"strings"
	"unicode/utf8"
)

// Result is a ranked passage with its similarity score.
type Result struct {
	Snippet string
	Score   float64
}

// Index is implemented by all passage indices.
type Index interface {
	TopK(query string, k int) []Result
	Len() int
}

// Option customizes index construction.
type Option func(*config)

type config struct {
	minPassageRunes int
	maxPassageRunes int
	stopwords       map[string]struct{}
	maxPassages     int
}

// defaultStopwords are dropped from both query and passages.
var defaultStopwords = []string{
	"a", "an", "and", "at", "for", "in", "of", "on", "or", "the", "to", "with",
}

func defaultConfig() config {
	c := config{
		minPassageRunes: 20,
		maxPassageRunes: 600,
	}
	WithStopwords(defaultStopwords)(&c)
	return c
}

// WithMinPassageRunes drops passages shorter than n runes. Zero keeps all.
func WithMinPassageRunes(n int) Option {
	return func(c *config) {
		if n >= 0 {
			c.minPassageRunes = n
		}
	}
}

// WithMaxPassageRunes splits blocks longer than n runes into their lines.
func WithMaxPassageRunes(n int) Option {
	return func(c *config) {
		if n > 0 {
			c.maxPassageRunes = n
		}
	}
}

// WithStopwords replaces the stop-word list. An empty list keeps the current one.
func WithStopwords(words []string) Option {
	return func(c *config) {
		m := make(map[string]struct{}, len(words))
		for _, w := range words {
			w = strings.ToLower(strings.TrimSpace(w))
			if w != "" {
				m[w] = struct{}{}
			}
		}
		if len(m) > 0 {
			c.stopwords = m
		}
	}
}

// WithMaxPassages caps how many passages are indexed.
func WithMaxPassages(n int) Option {
	return func(c *config) {
		if n > 0 {
			c.maxPassages = n
		}
	}
}

type passage struct {
	text   string
	tokens map[string]struct{}
}

type index struct {
	cfg      config
	passages []passage
}

// NewIndex splits résumé text into passages and indexes them. Blocks are
// separated by blank lines; blocks over the max length are indexed line by
// line, which suits bullet lists.
func NewIndex(text string, opts ...Option) Index {
	cfg := defaultConfig()
	for _, o := range opts {
		o(&cfg)
	}
	return build(splitPassages(text, cfg.maxPassageRunes), cfg)
}

// NewIndexFromStrings indexes the given passages as is.
func NewIndexFromStrings(passages []string, opts ...Option) Index {
	cfg := defaultConfig()
	for _, o := range opts {
		o(&cfg)
	}
	return build(passages, cfg)
}

func build(raw []string, cfg config) *index {
	out := make([]passage, 0, len(raw))
	for _, r := range raw {
		t := strings.TrimSpace(normalizeWhitespace(r))
		if t == "" {
			continue
		}
		if cfg.minPassageRunes > 0 && utf8.RuneCountInString(t) < cfg.minPassageRunes {
			continue
		}
		toks := tokenize(t, cfg.stopwords)
		if len(toks) == 0 {
			continue
		}
		out = append(out, passage{text: t, tokens: toks})
		if cfg.maxPassages > 0 && len(out) >= cfg.maxPassages {
			break
		}
	}
	return &index{cfg: cfg, passages: out}
}

// Len reports how many passages were indexed.
func (i *index) Len() int { return len(i.passages) }

// TopK returns up to k best-matching passages. k <= 0 means 3.
func (i *index) TopK(q string, k int) []Result {
	if len(i.passages) == 0 || strings.TrimSpace(q) == "" {
		return nil
	}
	if k <= 0 {
		k = 3
	}
	qTokens := tokenize(q, i.cfg.stopwords)
	if len(qTokens) == 0 {
		return nil
	}

	type scored struct {
		snippet  string
		score    float64
		lenRunes int
	}
	buf := make([]scored, 0, len(i.passages))
	for _, p := range i.passages {
		over := overlap(qTokens, p.tokens)
		if over == 0 {
			continue
		}
		union := float64(len(qTokens) + len(p.tokens) - over)
		buf = append(buf, scored{
			snippet:  p.text,
			score:    float64(over) / union,
			lenRunes: utf8.RuneCountInString(p.text),
		})
	}
	if len(buf) == 0 {
		return nil
	}

	sort.SliceStable(buf, func(a, b int) bool {
		if buf[a].score != buf[b].score {
			return buf[a].score > buf[b].score
		}
		if buf[a].lenRunes != buf[b].lenRunes {
			return buf[a].lenRunes < buf[b].lenRunes
		}
		return buf[a].snippet < buf[b].snippet
	})

	if k > len(buf) {
		k = len(buf)
	}
	out := make([]Result, k)
	for n := 0; n < k; n++ {
		out[n] = Result{Snippet: buf[n].snippet, Score: buf[n].score}
	}
	return out
}

var wordRE = regexp.MustCompile(`[\p{L}\p{N}][\p{L}\p{N}+#.]*`)

// tokenize lowercases s and returns its word set. Tokens keep inner
// "+", "#" and "." so C++, C# and Node.js survive; a trailing dot is cut.
func tokenize(s string, stop map[string]struct{}) map[string]struct{} {
	words := wordRE.FindAllString(strings.ToLower(s), -1)
	if len(words) == 0 {
		return nil
	}
	out := make(map[string]struct{}, len(words))
	for _, w := range words {
		w = strings.TrimRight(w, ".")
		if w == "" {
			continue
		}
		if _, skip := stop[w]; skip {
			continue
		}
		out[w] = struct{}{}
	}
	return out
}

func overlap(a, b map[string]struct{}) int {
	if len(a) > len(b) {
		a, b = b, a
	}
	n := 0
	for k := range a {
		if _, ok := b[k]; ok {
			n++
		}
	}
	return n
}

func normalizeWhitespace(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	prevSpace := false
	for _, r := range s {
		if r == ' ' || r == '\t' || r == '\r' || r == '\n' {
			if !prevSpace {
				b.WriteByte(' ')
				prevSpace = true
			}
			continue
		}
		prevSpace = false
		b.WriteRune(r)
	}
	return b.String()
}

var blockSplitRE = regexp.MustCompile(`\n\s*\n`)

func splitPassages(text string, maxRunes int) []string {
	text = strings.ReplaceAll(text, "\r\n", "\n")
	var out []string
	for _, block := range blockSplitRE.Split(text, -1) {
		block = strings.TrimSpace(block)
		if block == "" {
			continue
		}
		if utf8.RuneCountInString(block) <= maxRunes {
			out = append(out, block)
			continue
		}
		for _, line := range strings.Split(block, "\n") {
			line = strings.TrimSpace(strings.TrimLeft(strings.TrimSpace(line), "-•*"))
			if line != "" {
				out = append(out, line)
			}
		}
	}
	return out
}
