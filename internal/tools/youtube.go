package tools

import (
	"context"
	"encoding/json"
	"encoding/xml"
	"fmt"
	"html"
	"io"
	"net/http"
	"net/url"
	"regexp"
	"strings"
	"time"
)

// videoIDPatterns match the URL forms a video link can take.
var videoIDPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?:v=|/v/)([A-Za-z0-9_-]{11})`),
	regexp.MustCompile(`youtu\.be/([A-Za-z0-9_-]{11})`),
	regexp.MustCompile(`/(?:embed|shorts|live)/([A-Za-z0-9_-]{11})`),
	regexp.MustCompile(`^([A-Za-z0-9_-]{11})$`),
}

// captionTracksPattern pulls the caption track list out of the watch
// page's embedded player config.
var captionTracksPattern = regexp.MustCompile(`"captionTracks":(\[.*?\])`)

// captionTrack is one entry of the player config's track list.
type captionTrack struct {
	BaseURL      string `json:"baseUrl"`
	LanguageCode string `json:"languageCode"`
	Kind         string `json:"kind"`
}

// transcriptXML is the timedtext document served at a track's base URL.
type transcriptXML struct {
	Texts []struct {
		Start float64 `xml:"start,attr"`
		Dur   float64 `xml:"dur,attr"`
		Body  string  `xml:",chardata"`
	} `xml:"text"`
}

// YouTubeTranscriptTool fetches video captions. Runs on the host; needs
// no API key, only public endpoints.
type YouTubeTranscriptTool struct {
	BaseTool
	client *http.Client
}

// NewYouTubeTranscriptTool creates a YouTubeTranscriptTool.
func NewYouTubeTranscriptTool() *YouTubeTranscriptTool {
	return &YouTubeTranscriptTool{
		BaseTool: NewBaseTool(
			"youtube_transcript",
			"Fetch the transcript of a YouTube video. Accepts a video URL or bare video ID; returns timestamped caption lines.",
			LocationHost,
			map[string]interface{}{
				"type": "object",
				"properties": map[string]interface{}{
					"url": map[string]interface{}{
						"type":        "string",
						"description": "The video URL or 11-character video ID.",
					},
					"language": map[string]interface{}{
						"type":        "string",
						"description": "Preferred caption language code, e.g. \"en\". Defaults to the first available track.",
					},
				},
				"required": []string{"url"},
			},
		),
		client: &http.Client{Timeout: 30 * time.Second},
	}
}

// Execute resolves the video, picks a caption track and formats the
// transcript.
func (t *YouTubeTranscriptTool) Execute(ctx context.Context, params map[string]interface{}) (string, error) {
	rawURL, err := GetStringParam(params, "url")
	if err != nil {
		return "", fmt.Errorf("youtube_transcript: %w", err)
	}

	videoID, err := extractVideoID(rawURL)
	if err != nil {
		return "", fmt.Errorf("youtube_transcript: %w", err)
	}

	tracks, err := t.fetchCaptionTracks(ctx, videoID)
	if err != nil {
		return "", fmt.Errorf("youtube_transcript: %w", err)
	}
	if len(tracks) == 0 {
		return "", fmt.Errorf("youtube_transcript: video %s has no captions", videoID)
	}

	track := pickTrack(tracks, GetStringParamOr(params, "language", ""))
	transcript, err := t.fetchTranscript(ctx, track.BaseURL)
	if err != nil {
		return "", fmt.Errorf("youtube_transcript: %w", err)
	}
	if len(transcript.Texts) == 0 {
		return "", fmt.Errorf("youtube_transcript: empty transcript for video %s", videoID)
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Transcript for %s (language: %s):\n\n", videoID, track.LanguageCode)
	var total float64
	for _, line := range transcript.Texts {
		text := collapseWhitespace(html.UnescapeString(line.Body))
		if text == "" {
			continue
		}
		fmt.Fprintf(&b, "[%s] %s\n", formatTimestamp(line.Start), text)
		if end := line.Start + line.Dur; end > total {
			total = end
		}
	}
	fmt.Fprintf(&b, "\n[duration: %s]", formatTimestamp(total))
	return b.String(), nil
}

// extractVideoID pulls the 11-character video ID out of any supported
// URL form.
func extractVideoID(rawURL string) (string, error) {
	rawURL = strings.TrimSpace(rawURL)
	for _, p := range videoIDPatterns {
		if m := p.FindStringSubmatch(rawURL); m != nil {
			return m[1], nil
		}
	}
	return "", fmt.Errorf("could not extract a video ID from %q", rawURL)
}

// fetchCaptionTracks scrapes the watch page for its caption track list.
func (t *YouTubeTranscriptTool) fetchCaptionTracks(ctx context.Context, videoID string) ([]captionTrack, error) {
	watchURL := "https://www.youtube.com/watch?v=" + url.QueryEscape(videoID)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, watchURL, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept-Language", "en-US,en")

	resp, err := t.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetching watch page: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("watch page returned %d", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading watch page: %w", err)
	}

	m := captionTracksPattern.FindSubmatch(body)
	if m == nil {
		return nil, nil
	}
	var tracks []captionTrack
	if err := json.Unmarshal(m[1], &tracks); err != nil {
		return nil, fmt.Errorf("parsing caption tracks: %w", err)
	}
	return tracks, nil
}

// pickTrack prefers an exact language match, then a manually-authored
// track, then the first entry.
func pickTrack(tracks []captionTrack, language string) captionTrack {
	if language != "" {
		for _, tr := range tracks {
			if tr.LanguageCode == language {
				return tr
			}
		}
	}
	for _, tr := range tracks {
		if tr.Kind != "asr" {
			return tr
		}
	}
	return tracks[0]
}

// fetchTranscript downloads and parses the timedtext XML document.
func (t *YouTubeTranscriptTool) fetchTranscript(ctx context.Context, baseURL string) (*transcriptXML, error) {
	baseURL = html.UnescapeString(baseURL)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, baseURL, nil)
	if err != nil {
		return nil, err
	}

	resp, err := t.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetching transcript: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("transcript endpoint returned %d", resp.StatusCode)
	}

	var parsed transcriptXML
	if err := xml.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("parsing transcript XML: %w", err)
	}
	return &parsed, nil
}

// formatTimestamp renders seconds as m:ss or h:mm:ss.
func formatTimestamp(seconds float64) string {
	total := int(seconds)
	h, m, s := total/3600, (total%3600)/60, total%60
	if h > 0 {
		return fmt.Sprintf("%d:%02d:%02d", h, m, s)
	}
	return fmt.Sprintf("%d:%02d", m, s)
}
