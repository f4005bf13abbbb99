package browser

import (
	"hash/fnv"
	"math/bits"
	"strings"

	"golang.org/x/net/html"
)

// fingerprintDOM computes a 64-bit SimHash of a page's tag sequence, using
// 3-tag shingles. Text and attributes are ignored, so only structural
// changes move the fingerprint.
func fingerprintDOM(markup string) uint64 {
	tags := tagSequence(markup)
	if len(tags) == 0 {
		return 0
	}
	if len(tags) < 3 {
		return simhash(tags)
	}
	shingles := make([]string, 0, len(tags)-2)
	for i := 0; i+3 <= len(tags); i++ {
		shingles = append(shingles, strings.Join(tags[i:i+3], "_"))
	}
	return simhash(shingles)
}

func tagSequence(markup string) []string {
	z := html.NewTokenizer(strings.NewReader(markup))
	var tags []string
	for {
		switch z.Next() {
		case html.ErrorToken:
			return tags
		case html.StartTagToken, html.SelfClosingTagToken:
			name, _ := z.TagName()
			tags = append(tags, string(name))
		}
	}
}

func simhash(tokens []string) uint64 {
	var vector [64]int
	for _, tok := range tokens {
		h := fnv.New64a()
		h.Write([]byte(tok))
		sum := h.Sum64()
		for i := 0; i < 64; i++ {
			if sum&(1<<uint(i)) != 0 {
				vector[i]++
			} else {
				vector[i]--
			}
		}
	}
	var fp uint64
	for i := 0; i < 64; i++ {
		if vector[i] > 0 {
			fp |= 1 << uint(i)
		}
	}
	return fp
}

// mutated reports whether two fingerprints differ by more than threshold bits.
func mutated(a, b uint64, threshold int) bool {
	return bits.OnesCount64(a^b) > threshold
}
