package transcript

import "regexp"

var (
	youtubeURLPattern = regexp.MustCompile(`^(https?://)?(www\.)?(youtube\.com|youtu\.be)/.+`)
	videoIDPattern    = regexp.MustCompile(`^.*(youtu\.be/|v/|u/\w/|embed/|watch\?v=|&v=)([^#&?]*).*`)
)

const videoIDLength = 11

// IsValidYouTubeURL reports whether url looks like a youtube.com or youtu.be link.
func IsValidYouTubeURL(url string) bool {
	return youtubeURLPattern.MatchString(url)
}

// ExtractVideoID returns the 11 character video ID of a YouTube URL, or "".
func ExtractVideoID(url string) string {
	m := videoIDPattern.FindStringSubmatch(url)
	if m == nil || len(m[2]) != videoIDLength {
		return ""
	}
	return m[2]
}
