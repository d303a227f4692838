package extract

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/dhowden/tag"
	"github.com/franz/project-copilot/internal/util"
)

// AudioExtractor indexes the tags of audio files as "Field: value" lines
type AudioExtractor struct{}

func (AudioExtractor) Name() string { return "audio-tags" }
func (AudioExtractor) Kind() Kind   { return KindAudio }

func (AudioExtractor) Extract(ctx context.Context, path string) (Result, error) {
	f, err := util.RetryableOpen(path, nil)
	if err != nil {
		return Result{}, fmt.Errorf("failed to open %s: %w", path, err)
	}
	defer f.Close()

	m, err := tag.ReadFrom(f)
	if errors.Is(err, tag.ErrNoTagsFound) {
		return Absent(ReasonNoTags), nil
	}
	if err != nil {
		return Failed("failed to read tags: %v", err), nil
	}

	var b strings.Builder
	line := func(field, value string) {
		if value = strings.TrimSpace(value); value != "" {
			fmt.Fprintf(&b, "%s: %s\n", field, value)
		}
	}
	line("Title", m.Title())
	line("Artist", m.Artist())
	line("Album", m.Album())
	line("Album Artist", m.AlbumArtist())
	line("Composer", m.Composer())
	line("Genre", m.Genre())
	if m.Year() > 0 {
		line("Year", strconv.Itoa(m.Year()))
	}
	line("Comment", m.Comment())
	line("Lyrics", m.Lyrics())

	if b.Len() == 0 {
		return Absent(ReasonNoTags), nil
	}
	return Text(strings.TrimRight(b.String(), "\n")).
		With("format", string(m.Format())).
		With("file_type", string(m.FileType())), nil
}
