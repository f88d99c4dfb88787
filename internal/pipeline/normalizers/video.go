package normalizers

import (
	"context"
	"encoding/xml"
	"fmt"
	"net/http"
	"net/url"
	"regexp"
	"strings"
	"time"

	"github.com/omnirag/omnirag-go/internal/pipeline/interfaces"
	"github.com/omnirag/omnirag-go/internal/pipeline/models"
	"github.com/omnirag/omnirag-go/pkg/util"

	"github.com/rs/zerolog"
)

const defaultVideoTimeout = 30 * time.Second

// Transcript languages tried in preference order before falling back to
// whatever the video offers.
var preferredTranscriptLangs = []string{"en", "es", "hi", "te", "ta"}

var videoIDPattern = regexp.MustCompile(`(?:v=|youtu\.be/|/shorts/)([A-Za-z0-9_-]{11})`)

// transcriptList mirrors the timedtext track listing.
type transcriptList struct {
	Tracks []transcriptTrack `xml:"track"`
}

type transcriptTrack struct {
	LangCode string `xml:"lang_code,attr"`
	Name     string `xml:"name,attr"`
}

// transcriptBody mirrors the timedtext transcript payload.
type transcriptBody struct {
	Lines []transcriptLine `xml:"text"`
}

type transcriptLine struct {
	Start string `xml:"start,attr"`
	Text  string `xml:",chardata"`
}

// VideoNormalizer fetches the best-available transcript for a YouTube-style
// video link.
type VideoNormalizer struct {
	client  *http.Client
	baseURL string
	logger  zerolog.Logger
}

// NewVideoNormalizer creates a new video transcript normalizer.
func NewVideoNormalizer() *VideoNormalizer {
	return NewVideoNormalizerWithClient(nil, "")
}

// NewVideoNormalizerWithClient creates a video normalizer with a custom HTTP
// client and timedtext base URL, used by tests to point at a stub server.
func NewVideoNormalizerWithClient(client *http.Client, baseURL string) *VideoNormalizer {
	if client == nil {
		client = &http.Client{Timeout: defaultVideoTimeout}
	}
	if baseURL == "" {
		baseURL = "https://video.google.com/timedtext"
	}

	return &VideoNormalizer{
		client:  client,
		baseURL: baseURL,
		logger:  util.NewLogger(zerolog.ErrorLevel),
	}
}

// GetSourceKind returns the kind of source this normalizer handles.
func (v *VideoNormalizer) GetSourceKind() models.SourceKind {
	return models.KindVideo
}

// Normalize fetches the transcript for the linked video. The result language
// is the code of the transcript actually served, which callers surface so a
// Hindi transcript is not mistaken for English content.
func (v *VideoNormalizer) Normalize(ctx context.Context, source *models.Source) (*interfaces.NormalizeResult, error) {
	if source.Kind != models.KindVideo {
		return nil, ErrNormalizerNotSupported
	}
	if source.RawURL == nil || *source.RawURL == "" {
		v.logger.Error().Str("source_id", source.ID).Msg("video source has no URL")
		return nil, ErrMissingURL
	}

	videoID, err := ExtractVideoID(*source.RawURL)
	if err != nil {
		v.logger.Error().Err(err).Str("url", *source.RawURL).Msg("failed to extract video id")
		return nil, err
	}

	tracks, err := v.listTranscripts(ctx, videoID)
	if err != nil {
		v.logger.Error().Err(err).Str("video_id", videoID).Msg("failed to list transcripts")
		return nil, err
	}
	if len(tracks) == 0 {
		v.logger.Error().Str("video_id", videoID).Msg("no transcript available in any language")
		return nil, ErrNoTranscriptAvailable
	}

	track := pickTranscriptTrack(tracks)
	text, err := v.fetchTranscript(ctx, videoID, track)
	if err != nil {
		v.logger.Error().Err(err).Str("video_id", videoID).Str("lang", track.LangCode).Msg("failed to fetch transcript")
		return nil, err
	}
	if strings.TrimSpace(text) == "" {
		v.logger.Error().Str("video_id", videoID).Str("lang", track.LangCode).Msg("transcript is empty")
		return nil, ErrNoTranscriptAvailable
	}

	return &interfaces.NormalizeResult{
		Text:     text,
		Language: track.LangCode,
		Metadata: map[string]interface{}{
			"video_id": videoID,
		},
	}, nil
}

// ExtractVideoID pulls the 11-character video id out of watch, short-link and
// shorts URLs.
func ExtractVideoID(rawURL string) (string, error) {
	matches := videoIDPattern.FindStringSubmatch(rawURL)
	if len(matches) < 2 {
		return "", ErrInvalidVideoURL
	}
	return matches[1], nil
}

func (v *VideoNormalizer) listTranscripts(ctx context.Context, videoID string) ([]transcriptTrack, error) {
	listURL := fmt.Sprintf("%s?type=list&v=%s", v.baseURL, url.QueryEscape(videoID))

	var list transcriptList
	if err := v.getXML(ctx, listURL, &list); err != nil {
		return nil, err
	}
	return list.Tracks, nil
}

func (v *VideoNormalizer) fetchTranscript(ctx context.Context, videoID string, track transcriptTrack) (string, error) {
	transcriptURL := fmt.Sprintf("%s?v=%s&lang=%s", v.baseURL, url.QueryEscape(videoID), url.QueryEscape(track.LangCode))
	if track.Name != "" {
		transcriptURL += "&name=" + url.QueryEscape(track.Name)
	}

	var body transcriptBody
	if err := v.getXML(ctx, transcriptURL, &body); err != nil {
		return "", err
	}

	lines := make([]string, 0, len(body.Lines))
	for _, line := range body.Lines {
		trimmed := strings.TrimSpace(line.Text)
		if trimmed != "" {
			lines = append(lines, trimmed)
		}
	}
	return strings.Join(lines, "\n"), nil
}

func (v *VideoNormalizer) getXML(ctx context.Context, rawURL string, out interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrTranscriptFetchFailed, err)
	}

	resp, err := v.client.Do(req)
	if err != nil {
		if util.IsTimeoutError(err) {
			return fmt.Errorf("%w: %v", ErrTimeout, err)
		}
		return fmt.Errorf("%w: %v", ErrTranscriptFetchFailed, err)
	}
	defer func() {
		if err := resp.Body.Close(); err != nil {
			v.logger.Error().Err(err).Msg("failed to close response body")
		}
	}()

	if resp.StatusCode != http.StatusOK {
		v.logger.Error().Int("status_code", resp.StatusCode).Str("url", rawURL).Msg("transcript request failed")
		return fmt.Errorf("%w: %w: %d", ErrTranscriptFetchFailed, ErrUnexpectedStatusCode, resp.StatusCode)
	}

	if err := xml.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("%w: %v", ErrTranscriptFetchFailed, err)
	}
	return nil
}

// pickTranscriptTrack prefers the pipeline's supported languages in order and
// falls back to the first track the video offers.
func pickTranscriptTrack(tracks []transcriptTrack) transcriptTrack {
	for _, lang := range preferredTranscriptLangs {
		for _, track := range tracks {
			if track.LangCode == lang || strings.HasPrefix(track.LangCode, lang+"-") {
				return track
			}
		}
	}
	return tracks[0]
}
