package pipeline

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/jun/notabl/backend/internal/adapter"
	"github.com/jun/notabl/backend/internal/model"
	"github.com/jun/notabl/backend/internal/transcript"
)

const (
	youtubeFallbackTitle = "YouTube Summary"
	audioContent         = "Detailed summary of the transcript with structured information."
	defaultContent       = "Add your content here..."
)

// NoteFor builds the note generated for a finished job. result is only used for YouTube jobs.
func NoteFor(job model.Job, result *transcript.Result) adapter.NoteInput {
	in := adapter.NoteInput{
		FolderID:   job.FolderID,
		SourceType: job.SourceType,
		SourceURL:  job.SourceURL,
	}

	switch job.SourceType {
	case model.SourceYouTube:
		in.Title = youtubeFallbackTitle
		if result != nil {
			if t := strings.TrimSpace(result.VideoDetails.Title); t != "" {
				in.Title = t
			}
			in.Content = YouTubeContent(*result)
			in.Summary = fmt.Sprintf("%s · %s views", result.VideoDetails.Channel, formatCount(result.VideoDetails.ViewCount))
		}
	case model.SourceAudio:
		in.Title = adapter.DefaultTitle(model.SourceAudio)
		in.Content = audioContent
	default:
		in.Title = adapter.DefaultTitle(job.SourceType)
		in.Content = defaultContent
	}

	if title := []rune(in.Title); len(title) > adapter.MaxTitleLength {
		in.Title = string(title[:adapter.MaxTitleLength])
	}
	if len(in.Content) > adapter.MaxContentSize {
		in.Content = strings.ToValidUTF8(in.Content[:adapter.MaxContentSize], "")
	}
	return in
}

// YouTubeContent renders the Markdown body of an imported video.
func YouTubeContent(r transcript.Result) string {
	var b strings.Builder
	b.WriteString("## Video Details\n")
	fmt.Fprintf(&b, "- Channel: %s\n", r.VideoDetails.Channel)
	fmt.Fprintf(&b, "- Views: %s\n", formatCount(r.VideoDetails.ViewCount))
	fmt.Fprintf(&b, "- Published: %s\n", formatDate(r.VideoDetails.PublishDate))
	b.WriteString("\n## Transcript\n")
	b.WriteString(strings.TrimSpace(r.Transcript))
	return b.String()
}

// formatCount groups digits by thousands: 1234567 -> "1,234,567".
func formatCount(n int64) string {
	s := strconv.FormatInt(n, 10)
	neg := strings.HasPrefix(s, "-")
	if neg {
		s = s[1:]
	}
	var out []byte
	for i := range s {
		if i > 0 && (len(s)-i)%3 == 0 {
			out = append(out, ',')
		}
		out = append(out, s[i])
	}
	if neg {
		return "-" + string(out)
	}
	return string(out)
}

func formatDate(raw string) string {
	for _, layout := range []string{time.RFC3339, time.DateOnly} {
		if t, err := time.Parse(layout, raw); err == nil {
			return t.Format("1/2/2006")
		}
	}
	return raw
}
