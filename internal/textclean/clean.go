// Package textclean repairs common recognition artifacts in raw OCR output.
package textclean

import (
	"regexp"
	"strings"
)

var (
	reWhitespace    = regexp.MustCompile(`[ \t\f\v]+`)
	reDigitSplit    = regexp.MustCompile(`(\d) (\d)`)
	reLetterSplit   = regexp.MustCompile(`([a-zA-Z]) ([a-zA-Z])`)
	reCamelArtifact = regexp.MustCompile(`([a-z])([A-Z])`)
)

// Clean applies the artifact repair rules line by line, in a fixed order.
// Each rule operates on the output of the previous one; rules 2-4 depend on
// that ordering. Line breaks survive cleanup so label matching downstream
// can still work per line. Clean is idempotent: Clean(Clean(s)) == Clean(s).
func Clean(s string) string {
	s = strings.ReplaceAll(s, "\r\n", "\n")
	lines := strings.Split(s, "\n")
	out := make([]string, 0, len(lines))
	for _, line := range lines {
		if line = cleanLine(line); line != "" {
			out = append(out, line)
		}
	}
	return strings.Join(out, "\n")
}

// cleanLine reapplies the rule pipeline until the line stops changing. A
// single pass is not a fixed point: rule 6 can produce a letter ("a | b" ->
// "a I b") that rules 3 and 5 still act on.
func cleanLine(s string) string {
	for {
		next := cleanLineOnce(s)
		if next == s {
			return s
		}
		s = next
	}
}

func cleanLineOnce(s string) string {
	// 1. collapse whitespace runs
	s = reWhitespace.ReplaceAllString(s, " ")
	// 2. close digit splits ("1 2 3" -> "123")
	s = replaceUntilStable(s, reDigitSplit, "$1$2")
	// 3. close letter splits (words broken by the recognizer)
	s = replaceUntilStable(s, reLetterSplit, "$1$2")
	// 4. pad stray periods/commas not flanked by digits on both sides
	s = padStrayPunctuation(s)
	// 5. split camel-case artifacts ("JohnDoe" -> "John Doe")
	s = reCamelArtifact.ReplaceAllString(s, "$1 $2")
	// 6. the pipe glyph is almost always a misread capital I
	s = strings.ReplaceAll(s, "|", "I")
	return strings.TrimSpace(s)
}

// replaceUntilStable reapplies a replacement until it stops changing the
// input. Regexp replacement does not revisit overlapping matches ("1 2 3"
// needs two passes), so a single pass is not enough for split repair.
func replaceUntilStable(s string, re *regexp.Regexp, repl string) string {
	for {
		next := re.ReplaceAllString(s, repl)
		if next == s {
			return s
		}
		s = next
	}
}

// padStrayPunctuation surrounds a period or comma with spaces unless it is
// flanked by digits on both sides, which would corrupt decimals like 12.50.
// Already-padded punctuation is left alone to keep the rule idempotent.
func padStrayPunctuation(s string) string {
	var b strings.Builder
	b.Grow(len(s) + 8)
	runes := []rune(s)
	for i, r := range runes {
		if r != '.' && r != ',' {
			b.WriteRune(r)
			continue
		}
		prevDigit := i > 0 && isDigit(runes[i-1])
		nextDigit := i+1 < len(runes) && isDigit(runes[i+1])
		if prevDigit && nextDigit {
			b.WriteRune(r)
			continue
		}
		if i > 0 && runes[i-1] != ' ' {
			b.WriteRune(' ')
		}
		b.WriteRune(r)
		if i+1 < len(runes) && runes[i+1] != ' ' {
			b.WriteRune(' ')
		}
	}
	return b.String()
}

func isDigit(r rune) bool { return r >= '0' && r <= '9' }
