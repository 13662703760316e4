package cache

import (
	"fmt"
	"io"
	"os"
	"strconv"

	"github.com/cespare/xxhash"
)

// KeyParams are the transcription options that change the output for the same audio
type KeyParams struct {
	Backend                 string
	Model                   string
	Language                string
	ConditionOnPreviousText bool
}

// KeyForFile hashes the audio content together with the transcription options
func KeyForFile(path string, params KeyParams) (string, int64, error) {
	file, err := os.Open(path)
	if err != nil {
		return "", 0, fmt.Errorf("open audio for hashing: %w", err)
	}
	defer file.Close()

	return KeyForReader(file, params)
}

// KeyForReader is KeyForFile over an arbitrary stream; it also returns the byte count
func KeyForReader(r io.Reader, params KeyParams) (string, int64, error) {
	digest := xxhash.New()
	n, err := io.Copy(digest, r)
	if err != nil {
		return "", 0, fmt.Errorf("hash audio: %w", err)
	}

	// NUL separators keep "ab"+"c" distinct from "a"+"bc"
	for _, part := range []string{params.Backend, params.Model, params.Language, strconv.FormatBool(params.ConditionOnPreviousText)} {
		_, _ = digest.Write([]byte{0})
		_, _ = digest.Write([]byte(part))
	}

	return fmt.Sprintf("%016x", digest.Sum64()), n, nil
}
