package transcript

// Document bundles both renderings of a transcript with its title
type Document struct {
	Title     string `json:"title"`
	Plain     string `json:"plain"`
	Subtitles string `json:"subtitles"`
}

// Render builds both output formats for the given title and segments
func Render(title string, segments []Segment) (Document, error) {
	plain, err := BuildPlainTranscript(title, segments)
	if err != nil {
		return Document{}, err
	}
	subtitles, err := BuildSubtitles(segments)
	if err != nil {
		return Document{}, err
	}
	return Document{Title: title, Plain: plain, Subtitles: subtitles}, nil
}

// PlainFilename is the suggested download name for the plain transcript
func (d Document) PlainFilename() string {
	return d.Title + ".txt"
}

// SubtitleFilename is the suggested download name for the subtitle file
func (d Document) SubtitleFilename() string {
	return d.Title + ".srt"
}
