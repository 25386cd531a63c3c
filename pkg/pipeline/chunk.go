package pipeline

import (
	"crypto/md5"
	"fmt"
	"regexp"
	"strings"
)

// Chunking defaults for search-index documents.
const (
	DefaultChunkSize    = 900
	DefaultChunkOverlap = 150

	// maxKeyLen is the document-key length cap. Keys past it are cut to
	// 991 characters plus "_" and an 8-character hash, landing exactly on
	// the cap so re-sanitizing is a no-op.
	maxKeyLen = 1000
)

var (
	invalidKeyCharRe = regexp.MustCompile(`[^a-zA-Z0-9_\-=]`)
	multiUnderRe     = regexp.MustCompile(`_+`)
)

// ChunkText splits text into chunks of at most size runes with the given
// overlap between consecutive chunks, snapping the cut to the last sentence
// or line boundary when one falls in the second half of the chunk. A text
// within the budget comes back as a single chunk.
func ChunkText(text string, size, overlap int) []string {
	runes := []rune(text)
	if len(runes) <= size {
		return []string{text}
	}

	// minStep keeps the scan moving forward even when a boundary snap
	// shortens the chunk below the overlap.
	minStep := size - overlap
	if minStep < 1 {
		minStep = 1
	}

	var chunks []string
	start := 0
	for start < len(runes) {
		end := start + size

		if end >= len(runes) {
			if chunk := strings.TrimSpace(string(runes[start:])); chunk != "" {
				chunks = append(chunks, chunk)
			}
			break
		}

		window := string(runes[start:end])
		lastPeriod := strings.LastIndex(window, ".")
		lastNewline := strings.LastIndex(window, "\n")

		boundary := lastPeriod
		if lastNewline > boundary {
			boundary = lastNewline
		}
		// Byte index back to a rune index within the window.
		if boundary >= 0 {
			boundaryRunes := len([]rune(window[:boundary]))
			if boundaryRunes > size/2 {
				end = start + boundaryRunes + 1
			}
		}

		if chunk := strings.TrimSpace(string(runes[start:end])); chunk != "" {
			chunks = append(chunks, chunk)
		}

		next := end - overlap
		if next <= start {
			next = start + minStep
		}
		start = next
	}
	return chunks
}

// SanitizeDocumentKey maps a raw key onto the search store's allowed
// alphabet: disallowed characters become underscores, runs collapse, and
// leading/trailing underscores are trimmed. Keys past the length cap keep
// their prefix plus a content hash of the raw key for uniqueness. The
// function is idempotent.
func SanitizeDocumentKey(key string) string {
	sanitized := invalidKeyCharRe.ReplaceAllString(key, "_")
	sanitized = multiUnderRe.ReplaceAllString(sanitized, "_")
	sanitized = strings.Trim(sanitized, "_")

	if len(sanitized) > maxKeyLen {
		hash := fmt.Sprintf("%x", md5.Sum([]byte(key)))[:8]
		sanitized = sanitized[:maxKeyLen-len(hash)-1] + "_" + hash
	}
	return sanitized
}

// DocumentKey builds the sanitized key for one chunk of an email.
func DocumentKey(emailID string, chunkIndex int) string {
	return SanitizeDocumentKey(fmt.Sprintf("%s::%d", emailID, chunkIndex))
}
