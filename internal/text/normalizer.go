// Package text normalizes input text before it reaches the base speaker model.
//
// The base model reads words, not notation: numbers are spelled out, common
// abbreviations are expanded and bibliography noise is dropped. URLs and email
// addresses pass through untouched.
package text

import (
	"regexp"
	"strconv"
	"strings"
	"unicode"
	"unicode/utf8"
)

const (
	baseTen      = 10
	baseTwenty   = 20
	baseHundred  = 100
	baseThousand = 1000
	// MaxSpelledNumber is the largest integer spelled out; bigger values stay digits.
	MaxSpelledNumber = 999_999_999
)

// Regex patterns used by the normalizer.
const (
	tokenPattern        = `https?://\S+|[a-zA-Z0-9._%+-]+@[a-zA-Z0-9.-]+\.[a-zA-Z]{2,}`
	referencePattern    = `\[\d+(?:,\s*\d+)*\]|\(\d+\)|[¹²³⁴⁵⁶⁷⁸⁹⁰]+`
	citationPattern     = `\([^)]*\d{4}[^)]*\)|\b\w+\s+et\s+al\.`
	abbreviationPattern = `\b(Mrs|Mr|Ms|Dr|St|Co|Ltd|Corp|Inc|vs|e\.g|i\.e)\.`
	groupedPattern      = `(\d),(\d{3})\b`
	numberPattern       = `\d+(?:\.\d+)?`
	whitespacePattern   = `\s+`
	spacedPunctPattern  = `\s+([.,!?;:])`
)

// tokenMark stands in for a preserved token while the rest of the text is rewritten.
// It is a private-use rune, so no pattern above can match it.
const tokenMark = "\uE000"

// closers end a quotation or aside; a period is appended after them.
const closers = "\"')"

// repeatable lists the marks collapsed when they appear more than once in a row.
const repeatable = "!?,;:"

// abbreviations maps each abbreviation, without its trailing period, to its spoken form.
var abbreviations = map[string]string{
	"Mr":   "Mister",
	"Mrs":  "Misses",
	"Ms":   "Miss",
	"Dr":   "Doctor",
	"St":   "Saint",
	"Co":   "Company",
	"Ltd":  "Limited",
	"Corp": "Corporation",
	"Inc":  "Incorporated",
	"vs":   "versus",
	"e.g":  "for example",
	"i.e":  "that is",
}

var (
	ones = []string{
		"zero", "one", "two", "three", "four", "five", "six", "seven", "eight", "nine",
	}
	teens = []string{
		"ten", "eleven", "twelve", "thirteen", "fourteen",
		"fifteen", "sixteen", "seventeen", "eighteen", "nineteen",
	}
	tens = []string{
		"", "", "twenty", "thirty", "forty", "fifty", "sixty", "seventy", "eighty", "ninety",
	}
	scales = []struct {
		value int
		name  string
	}{
		{1_000_000, "million"},
		{baseThousand, "thousand"},
	}
)

// Normalizer rewrites text into a form the base speaker model reads aloud cleanly.
// It is safe for concurrent use.
type Normalizer struct {
	token        *regexp.Regexp
	reference    *regexp.Regexp
	citation     *regexp.Regexp
	grouped      *regexp.Regexp
	number       *regexp.Regexp
	whitespace   *regexp.Regexp
	spacedPunct  *regexp.Regexp
	abbreviation *regexp.Regexp
	typography   *strings.Replacer
}

// NewNormalizer compiles the patterns used by Normalize.
func NewNormalizer() *Normalizer {
	return &Normalizer{
		token:        regexp.MustCompile(tokenPattern),
		reference:    regexp.MustCompile(referencePattern),
		citation:     regexp.MustCompile(citationPattern),
		grouped:      regexp.MustCompile(groupedPattern),
		number:       regexp.MustCompile(numberPattern),
		whitespace:   regexp.MustCompile(whitespacePattern),
		spacedPunct:  regexp.MustCompile(spacedPunctPattern),
		abbreviation: regexp.MustCompile(abbreviationPattern),
		typography: strings.NewReplacer(
			"—", "-", "–", "-", "‒", "-",
			"…", "...",
			"“", `"`, "”", `"`,
			"‘", "'", "’", "'",
		),
	}
}

// Normalize returns the spoken form of input. Blank input yields "".
func (n *Normalizer) Normalize(input string) string {
	if strings.TrimSpace(input) == "" {
		return ""
	}

	text, tokens := n.preserve(input)

	text = n.reference.ReplaceAllString(text, "")
	text = n.citation.ReplaceAllString(text, "")
	text = n.expandAbbreviations(text)
	text = n.spellNumbers(text)
	text = n.typography.Replace(text)
	text = collapseRepeats(text)
	text = n.whitespace.ReplaceAllString(text, " ")
	text = n.spacedPunct.ReplaceAllString(text, "$1")
	text = strings.TrimSpace(text)
	text = restore(text, tokens)

	return terminate(text)
}

// preserve swaps URLs and email addresses for tokenMark, returning them in order of
// appearance.
func (n *Normalizer) preserve(text string) (string, []string) {
	var tokens []string

	text = n.token.ReplaceAllStringFunc(text, func(match string) string {
		tokens = append(tokens, match)

		return tokenMark
	})

	return text, tokens
}

func restore(text string, tokens []string) string {
	for _, token := range tokens {
		text = strings.Replace(text, tokenMark, token, 1)
	}

	return text
}

// expandAbbreviations rewrites abbreviations that start a word. Text such as "devs."
// is left alone.
func (n *Normalizer) expandAbbreviations(text string) string {
	return n.abbreviation.ReplaceAllStringFunc(text, func(match string) string {
		return abbreviations[strings.TrimSuffix(match, ".")]
	})
}

// spellNumbers drops thousands separators and spells out every integer and decimal.
func (n *Normalizer) spellNumbers(text string) string {
	for n.grouped.MatchString(text) {
		text = n.grouped.ReplaceAllString(text, "$1$2")
	}

	return n.number.ReplaceAllStringFunc(text, func(match string) string {
		whole, fraction, hasFraction := strings.Cut(match, ".")

		value, err := strconv.Atoi(whole)
		if err != nil || value > MaxSpelledNumber {
			return match
		}

		words := IntegerToWords(value)
		if !hasFraction {
			return words
		}

		digits := make([]string, 0, len(fraction))
		for _, digit := range fraction {
			digits = append(digits, ones[digit-'0'])
		}

		return words + " point " + strings.Join(digits, " ")
	})
}

// collapseRepeats reduces runs of the same mark in repeatable to a single mark.
func collapseRepeats(text string) string {
	var (
		out  strings.Builder
		last rune
	)

	for _, char := range text {
		if char == last && strings.ContainsRune(repeatable, char) {
			continue
		}

		out.WriteRune(char)

		last = char
	}

	return out.String()
}

// terminate guarantees the text ends like a sentence.
func terminate(text string) string {
	if text == "" {
		return ""
	}

	lastChar, _ := utf8.DecodeLastRuneInString(text)

	switch lastChar {
	case '.', '!', '?':
		return text
	}

	if unicode.IsPunct(lastChar) && !strings.ContainsRune(closers, lastChar) {
		text = strings.TrimRightFunc(text, func(r rune) bool {
			return unicode.IsPunct(r) || unicode.IsSpace(r)
		})
		if text == "" {
			return ""
		}
	}

	return text + "."
}

// IntegerToWords spells out a non-negative integer in English. Values outside
// [0, MaxSpelledNumber] are returned as digits.
func IntegerToWords(number int) string {
	if number < 0 || number > MaxSpelledNumber {
		return strconv.Itoa(number)
	}

	if number == 0 {
		return ones[0]
	}

	var parts []string

	remaining := number
	for _, scale := range scales {
		if remaining >= scale.value {
			parts = append(parts, underThousand(remaining/scale.value)+" "+scale.name)
			remaining %= scale.value
		}
	}

	if remaining > 0 {
		parts = append(parts, underThousand(remaining))
	}

	return strings.Join(parts, " ")
}

func underThousand(number int) string {
	if number < baseHundred {
		return underHundred(number)
	}

	words := ones[number/baseHundred] + " hundred"
	if rest := number % baseHundred; rest > 0 {
		words += " " + underHundred(rest)
	}

	return words
}

func underHundred(number int) string {
	switch {
	case number < baseTen:
		return ones[number]
	case number < baseTwenty:
		return teens[number-baseTen]
	}

	words := tens[number/baseTen]
	if rest := number % baseTen; rest > 0 {
		words += " " + ones[rest]
	}

	return words
}
