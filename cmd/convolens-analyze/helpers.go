package main

import (
	"fmt"
	"io"
	"os"

	"github.com/tjfontaine/convolens/internal/domain"
	"github.com/tjfontaine/convolens/internal/transcript"
)

// readTranscript parses path, or stdin when path is "-".
func readTranscript(stdin io.Reader, path string) ([]domain.Message, error) {
	if path == "-" {
		msgs, err := transcript.ParseReader(stdin)
		if err != nil {
			return nil, fmt.Errorf("read stdin: %w", err)
		}
		return msgs, nil
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open transcript: %w", err)
	}
	defer f.Close()

	msgs, err := transcript.ParseReader(f)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	return msgs, nil
}
