package ingest

// Chunking parameters: target chunk size and overlap between consecutive
// chunks, in runes.
const (
	ChunkSize    = 1000
	ChunkOverlap = 200
)

// Split cuts text into overlapping chunks of at most size runes, each
// sharing its first overlap runes with the tail of its predecessor.
// Document order is preserved and trailing content shorter than the target
// size is never dropped: concatenating the first chunk with every later
// chunk minus its overlap reconstructs the input.
func Split(text string, size, overlap int) []string {
	if size <= 0 {
		size = ChunkSize
	}
	if overlap < 0 || overlap >= size {
		overlap = ChunkOverlap
		if overlap >= size {
			overlap = size / 2
		}
	}

	runes := []rune(text)
	if len(runes) == 0 {
		return nil
	}
	if len(runes) <= size {
		return []string{text}
	}

	step := size - overlap
	var chunks []string
	for start := 0; start < len(runes); start += step {
		end := start + size
		if end >= len(runes) {
			chunks = append(chunks, string(runes[start:]))
			break
		}
		chunks = append(chunks, string(runes[start:end]))
	}
	return chunks
}
