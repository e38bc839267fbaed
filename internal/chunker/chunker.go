// Package chunker splits document text into overlapping fixed-size segments
// suitable for embedding and similarity search.
package chunker

// Config controls how documents are split.
type Config struct {
	// ChunkSize is the maximum chunk length in characters.
	ChunkSize int `mapstructure:"chunk_size"`
	// ChunkOverlap is the number of characters each chunk shares with the
	// tail of the previous one.
	ChunkOverlap int `mapstructure:"chunk_overlap"`
}

// DefaultConfig returns the default splitting configuration.
func DefaultConfig() Config {
	return Config{
		ChunkSize:    1000,
		ChunkOverlap: 200,
	}
}

// Splitter produces overlapping character windows over a text.
// Splitting is pure: no side effects, no retained state.
type Splitter struct {
	size    int
	overlap int
}

// NewSplitter creates a Splitter, normalizing out-of-range configuration.
// A zero-value Config gets the full defaults; an explicit overlap survives
// size defaulting.
func NewSplitter(cfg Config) *Splitter {
	if cfg.ChunkSize <= 0 {
		def := DefaultConfig()
		cfg.ChunkSize = def.ChunkSize
		if cfg.ChunkOverlap == 0 {
			cfg.ChunkOverlap = def.ChunkOverlap
		}
	}
	if cfg.ChunkOverlap < 0 {
		cfg.ChunkOverlap = 0
	}
	if cfg.ChunkOverlap >= cfg.ChunkSize {
		cfg.ChunkOverlap = cfg.ChunkSize / 5
	}
	return &Splitter{size: cfg.ChunkSize, overlap: cfg.ChunkOverlap}
}

// Size returns the configured maximum chunk length.
func (s *Splitter) Size() int { return s.size }

// Overlap returns the configured overlap length.
func (s *Splitter) Overlap() int { return s.overlap }

// Split cuts text into ordered chunks of at most ChunkSize characters.
// Every chunk after the first begins with the last ChunkOverlap characters
// of its predecessor, so no text is lost at a boundary. Text shorter than
// ChunkSize yields a single chunk; empty text yields none.
//
// Offsets are measured in runes so multi-byte characters are never split.
func (s *Splitter) Split(text string) []string {
	if text == "" {
		return nil
	}
	runes := []rune(text)
	if len(runes) <= s.size {
		return []string{text}
	}

	step := s.size - s.overlap
	chunks := make([]string, 0, (len(runes)+step-1)/step)
	for start := 0; ; start += step {
		end := start + s.size
		if end >= len(runes) {
			chunks = append(chunks, string(runes[start:]))
			break
		}
		chunks = append(chunks, string(runes[start:end]))
	}
	return chunks
}
