package extract

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

const maxSlugLen = 60

// foldText decomposes accented characters, drops the combining marks and
// lower-cases the result, so "Café Düsseldorf" and "cafe dusseldorf" agree.
func foldText(s string) string {
	t := transform.Chain(norm.NFKD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	out, _, err := transform.String(t, s)
	if err != nil {
		out = s
	}
	return strings.ToLower(strings.Join(strings.Fields(out), " "))
}

// slugify reduces s to lowercase ASCII words joined by hyphens.
func slugify(s string) string {
	var b strings.Builder
	dash := false
	for _, r := range foldText(s) {
		switch {
		case r < unicode.MaxASCII && (unicode.IsLetter(r) || unicode.IsDigit(r)):
			b.WriteRune(r)
			dash = false
		case !dash && b.Len() > 0:
			b.WriteByte('-')
			dash = true
		}
	}
	slug := strings.TrimRight(b.String(), "-")
	if len(slug) > maxSlugLen {
		slug = strings.TrimRight(slug[:maxSlugLen], "-")
	}
	return slug
}

// SynthesizeKey derives a stable natural key for a listing the marketplace
// did not give an identifier. The same title and location always produce the
// same key, regardless of case, spacing or accents.
func SynthesizeKey(title, location string) string {
	sum := sha256.Sum256([]byte(foldText(title) + "|" + foldText(location)))
	slug := slugify(title)
	if slug == "" {
		slug = "listing"
	}
	return "syn-" + slug + "-" + hex.EncodeToString(sum[:4])
}

// NaturalKey returns the marketplace listing ID when present, otherwise a
// synthesized key. ok is false when neither an ID nor a title is available.
func NaturalKey(listingID, title, location string) (key string, ok bool) {
	if id := strings.TrimSpace(listingID); id != "" {
		return id, true
	}
	if strings.TrimSpace(title) == "" {
		return "", false
	}
	return SynthesizeKey(title, location), true
}
