// Package printout lays a poem out as a bilingual receipt and encodes it for
// an ESC/POS thermal printer.
package printout

import (
	"strings"
	"time"
	"unicode"

	"golang.org/x/text/width"
)

const (
	Header    = "===== 詩歌相機 / Poetry Camera ====="
	Rule      = "======================"
	footerFmt = "列印時間 / Print Time: "
	timeFmt   = "2006-01-02 15:04:05"
)

// Document is a laid-out receipt.
type Document struct {
	Lines     []string
	Width     int
	PrintedAt time.Time
}

// Text joins the lines with newlines.
func (d *Document) Text() string {
	return strings.Join(d.Lines, "\n") + "\n"
}

// Format lays poem out for a printer with the given column width.
func Format(poem string, columns int, at time.Time) *Document {
	lines := []string{Header, ""}
	poem = strings.TrimSpace(strings.ReplaceAll(poem, "\r\n", "\n"))
	for _, l := range strings.Split(poem, "\n") {
		lines = append(lines, Wrap(strings.TrimRight(l, " \t"), columns)...)
	}
	lines = append(lines, "", Rule, footerFmt+at.Format(timeFmt))
	return &Document{Lines: lines, Width: columns, PrintedAt: at}
}

// RuneWidth is the number of printer columns r occupies.
func RuneWidth(r rune) int {
	if unicode.IsControl(r) {
		return 0
	}
	switch width.LookupRune(r).Kind() {
	case width.EastAsianWide, width.EastAsianFullwidth:
		return 2
	}
	return 1
}

// StringWidth sums RuneWidth over s.
func StringWidth(s string) int {
	n := 0
	for _, r := range s {
		n += RuneWidth(r)
	}
	return n
}

// Wrap breaks one line into lines no wider than columns. Latin words move
// to the next line whole when they fit there; wide runes may break anywhere.
// An empty line stays a single empty line.
func Wrap(line string, columns int) []string {
	if columns <= 0 || StringWidth(line) <= columns {
		return []string{line}
	}

	var (
		out   []string
		cur   strings.Builder
		curW  int
		flush = func() {
			out = append(out, strings.TrimRight(cur.String(), " "))
			cur.Reset()
			curW = 0
		}
	)
	for _, tok := range tokenize(line) {
		w := StringWidth(tok)
		if tok == " " {
			if curW > 0 && curW < columns {
				cur.WriteString(tok)
				curW++
			}
			continue
		}
		if curW+w > columns && curW > 0 {
			flush()
		}
		if w <= columns {
			cur.WriteString(tok)
			curW += w
			continue
		}
		for _, r := range tok {
			rw := RuneWidth(r)
			if curW+rw > columns {
				flush()
			}
			cur.WriteRune(r)
			curW += rw
		}
	}
	if curW > 0 {
		flush()
	}
	return out
}

// tokenize splits a line into single spaces, single wide runes and runs of
// narrow non-space runes.
func tokenize(s string) []string {
	var (
		toks []string
		word strings.Builder
	)
	endWord := func() {
		if word.Len() > 0 {
			toks = append(toks, word.String())
			word.Reset()
		}
	}
	for _, r := range s {
		switch {
		case unicode.IsSpace(r):
			endWord()
			toks = append(toks, " ")
		case RuneWidth(r) == 2:
			endWord()
			toks = append(toks, string(r))
		default:
			word.WriteRune(r)
		}
	}
	endWord()
	return toks
}
