package voice

import (
	"path/filepath"
	"sort"
)

// DefaultAccent is used when a request names no accent, and its embedding is used
// for codes the table does not know.
const DefaultAccent = "en-newest"

const embeddingExt = ".pth"

var accentCodes = map[string]struct{}{
	"en-au":      {},
	"en-br":      {},
	"en-default": {},
	"en-india":   {},
	"en-newest":  {},
	"en-us":      {},
	"es":         {},
	"fr":         {},
	"jp":         {},
	"kr":         {},
	"zh":         {},
}

// Accent pairs an accent code with the source embedding file the converter uses for
// it.
type Accent struct {
	Code string `json:"code"`
	File string `json:"file"`
}

// Accents lists the supported accents sorted by code.
func Accents() []Accent {
	accents := make([]Accent, 0, len(accentCodes))
	for code := range accentCodes {
		accents = append(accents, Accent{Code: code, File: code + embeddingExt})
	}

	sort.Slice(accents, func(i, j int) bool {
		return accents[i].Code < accents[j].Code
	})

	return accents
}

// ResolveAccent maps a requested accent to a supported code. Empty and unknown codes
// resolve to DefaultAccent.
func ResolveAccent(code string) string {
	if _, ok := accentCodes[code]; ok {
		return code
	}

	return DefaultAccent
}

// sourceEmbeddingPath is the accent's source embedding inside dir.
func sourceEmbeddingPath(dir, code string) string {
	return filepath.Join(dir, ResolveAccent(code)+embeddingExt)
}

// pickSpeaker chooses the base model speaker key: EN when listed, else the first
// listed key, else EN.
func pickSpeaker(speakers []string) string {
	for _, speaker := range speakers {
		if speaker == preferredSpeaker {
			return speaker
		}
	}

	if len(speakers) > 0 {
		return speakers[0]
	}

	return preferredSpeaker
}

const preferredSpeaker = "EN"
