// Package keyword evaluates urgency keyword rules against message text and
// manages the rule set.
package keyword

import (
	"errors"
	"regexp"
	"strings"
	"sync"
	"unicode"
	"unicode/utf8"
)

// MatchType selects how a rule's pattern is compared with a text.
type MatchType string

const (
	MatchExact    MatchType = "exact"
	MatchContains MatchType = "contains"
	MatchRegex    MatchType = "regex"
)

// Valid reports whether t is a known match type.
func (t MatchType) Valid() bool {
	switch t {
	case MatchExact, MatchContains, MatchRegex:
		return true
	}
	return false
}

// maxPatternLen bounds tenant-supplied regular expressions.
const maxPatternLen = 512

// Match reports whether pattern matches text under the given match type.
// It never panics: unknown match types and invalid regular expressions
// simply do not match.
func Match(pattern string, mt MatchType, text string, caseSensitive, wholeWord bool) bool {
	if pattern == "" {
		return false
	}

	switch mt {
	case MatchExact:
		if caseSensitive {
			return text == pattern
		}
		return strings.ToLower(text) == strings.ToLower(pattern)

	case MatchContains:
		if !caseSensitive {
			text = strings.ToLower(text)
			pattern = strings.ToLower(pattern)
		}
		if !wholeWord {
			return strings.Contains(text, pattern)
		}
		return containsWord(text, pattern)

	case MatchRegex:
		re, err := compile(pattern, caseSensitive)
		if err != nil {
			return false
		}
		return re.MatchString(text)

	default:
		return false
	}
}

// ValidatePattern reports whether pattern is acceptable for the match type.
// Only regex patterns can be malformed.
func ValidatePattern(mt MatchType, pattern string) error {
	if mt != MatchRegex {
		return nil
	}
	_, err := compile(pattern, true)
	return err
}

// containsWord reports whether word occurs in text without a word character
// immediately before or after it.
func containsWord(text, word string) bool {
	for offset := 0; offset <= len(text); {
		i := strings.Index(text[offset:], word)
		if i < 0 {
			return false
		}
		start := offset + i
		end := start + len(word)

		before, _ := utf8.DecodeLastRuneInString(text[:start])
		after, _ := utf8.DecodeRuneInString(text[end:])
		if (start == 0 || !isWordRune(before)) && (end == len(text) || !isWordRune(after)) {
			return true
		}

		// Advance past the first rune of this occurrence and keep looking.
		_, size := utf8.DecodeRuneInString(text[start:])
		offset = start + size
	}
	return false
}

func isWordRune(r rune) bool {
	return r == '_' || unicode.IsLetter(r) || unicode.IsDigit(r)
}

type regexKey struct {
	pattern       string
	caseSensitive bool
}

type regexEntry struct {
	re  *regexp.Regexp
	err error
}

// maxCachedPatterns bounds the compiled pattern cache. Dry runs from the admin
// API can submit arbitrary patterns, so the cache is reset when full.
const maxCachedPatterns = 1024

var errPatternTooLong = errors.New("regex pattern exceeds 512 characters")

var regexCache = struct {
	sync.RWMutex
	entries map[regexKey]regexEntry
}{entries: make(map[regexKey]regexEntry)}

func compile(pattern string, caseSensitive bool) (*regexp.Regexp, error) {
	key := regexKey{pattern: pattern, caseSensitive: caseSensitive}

	regexCache.RLock()
	e, ok := regexCache.entries[key]
	regexCache.RUnlock()
	if ok {
		return e.re, e.err
	}

	if len(pattern) > maxPatternLen {
		e.err = errPatternTooLong
	} else {
		expr := pattern
		if !caseSensitive {
			expr = "(?i)" + pattern
		}
		e.re, e.err = regexp.Compile(expr)
	}

	regexCache.Lock()
	if len(regexCache.entries) >= maxCachedPatterns {
		clear(regexCache.entries)
	}
	regexCache.entries[key] = e
	regexCache.Unlock()

	return e.re, e.err
}
