package vectorindex

import (
	"strings"
	"unicode"
)

// ChunkerConfig controls how source text is split into overlapping windows.
type ChunkerConfig struct {
	Size          int
	Overlap       int
	MaxChunks     int
	MaxInputChars int
}

// DefaultChunkerConfig returns the standard window settings.
func DefaultChunkerConfig() ChunkerConfig {
	return ChunkerConfig{Size: 1100, Overlap: 180, MaxChunks: 40, MaxInputChars: 60000}
}

// Chunk collapses whitespace in text, caps it at MaxInputChars and splits it into windows
// of at most Size runes that overlap by Overlap runes. A window prefers to end at a
// sentence or word boundary found in its last fifth. At most MaxChunks windows are returned.
func Chunk(text string, cfg ChunkerConfig) []string {
	defaults := DefaultChunkerConfig()
	if cfg.Size <= 0 {
		cfg.Size = defaults.Size
	}
	if cfg.Overlap < 0 || cfg.Overlap >= cfg.Size {
		cfg.Overlap = cfg.Size / 6
	}

	runes := []rune(strings.Join(strings.Fields(text), " "))
	if cfg.MaxInputChars > 0 && len(runes) > cfg.MaxInputChars {
		runes = runes[:cfg.MaxInputChars]
	}
	if len(runes) == 0 {
		return nil
	}

	var chunks []string
	start := 0
	for start < len(runes) {
		end := start + cfg.Size
		if end >= len(runes) {
			end = len(runes)
		} else {
			end = cleanBreak(runes, start, end, cfg.Size/5)
		}

		if chunk := strings.TrimSpace(string(runes[start:end])); chunk != "" {
			chunks = append(chunks, chunk)
		}
		if end == len(runes) || (cfg.MaxChunks > 0 && len(chunks) >= cfg.MaxChunks) {
			break
		}

		next := end - cfg.Overlap
		if next <= start {
			next = end
		}
		// don't start the next window mid-word
		for next < end && next > 0 && !unicode.IsSpace(runes[next-1]) {
			next++
		}
		start = next
	}
	return chunks
}

// cleanBreak moves end back to just after the last sentence terminator, or failing that
// the last space, within lookback runes.
func cleanBreak(runes []rune, start, end, lookback int) int {
	floor := end - lookback
	if floor <= start {
		return end
	}

	for i := end - 1; i > floor; i-- {
		if (runes[i-1] == '.' || runes[i-1] == '!' || runes[i-1] == '?') && unicode.IsSpace(runes[i]) {
			return i
		}
	}
	for i := end - 1; i > floor; i-- {
		if unicode.IsSpace(runes[i]) {
			return i
		}
	}
	return end
}
