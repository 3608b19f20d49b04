package platform

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"strings"
	"unicode/utf8"

	"github.com/go-resty/resty/v2"
	"github.com/maheshrc27/postflow-dispatch/internal/models"
	"golang.org/x/oauth2"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
	"google.golang.org/api/youtube/v3"
)

const maxVideoTitleLength = 100

// YouTubePublisher uploads a post's single video through the YouTube Data API.
type YouTubePublisher struct {
	downloader *resty.Client
	options    []option.ClientOption
}

// NewYouTubePublisher accepts extra client options, appended after the credential's HTTP client.
func NewYouTubePublisher(opts ...option.ClientOption) *YouTubePublisher {
	return &YouTubePublisher{
		downloader: resty.New(),
		options:    opts,
	}
}

func (y *YouTubePublisher) Publish(ctx context.Context, post *models.Post, credential *models.OAuthCredential) (*PublishResult, error) {
	if len(post.Media) != 1 || MediaKindOf(post.Media[0].URL) != MediaKindVideo {
		return nil, TerminalError("youtube posts need exactly one video")
	}

	client := oauth2.NewClient(ctx, oauth2.StaticTokenSource(&oauth2.Token{AccessToken: credential.AccessToken}))
	opts := append([]option.ClientOption{option.WithHTTPClient(client)}, y.options...)

	service, err := youtube.NewService(ctx, opts...)
	if err != nil {
		slog.Info(err.Error())
		return nil, RetryableError("creating youtube service: %v", err)
	}

	tempFile, err := y.downloadVideo(ctx, post.Media[0].URL)
	if err != nil {
		return nil, err
	}
	defer os.Remove(tempFile)

	file, err := os.Open(tempFile)
	if err != nil {
		return nil, RetryableError("opening video file: %v", err)
	}
	defer file.Close()

	video := &youtube.Video{
		Snippet: &youtube.VideoSnippet{
			Title:       videoTitle(post.Caption),
			Description: ComposeMessage(post),
			Tags:        post.Hashtags,
			CategoryId:  "22",
		},
		Status: &youtube.VideoStatus{
			PrivacyStatus: "public",
		},
	}

	response, err := service.Videos.Insert([]string{"snippet", "status"}, video).Media(file).Context(ctx).Do()
	if err != nil {
		slog.Info(err.Error())
		return nil, classifyGoogleError(err)
	}

	slog.Info("youtube video uploaded", "post_id", post.ID, "video_id", response.Id)

	result := &PublishResult{ProviderPostID: response.Id}
	if response.Snippet != nil {
		result.ProviderAccountID = response.Snippet.ChannelId
	}
	return result, nil
}

func (y *YouTubePublisher) downloadVideo(ctx context.Context, url string) (string, error) {
	tempFile, err := os.CreateTemp("", "video-*."+MediaFormat(url))
	if err != nil {
		return "", RetryableError("creating temporary file: %v", err)
	}
	tempFile.Close()

	resp, err := y.downloader.R().
		SetContext(ctx).
		SetOutput(tempFile.Name()).
		Get(url)
	if err != nil {
		os.Remove(tempFile.Name())
		return "", RetryableError("downloading video: %v", err)
	}

	if resp.IsError() {
		os.Remove(tempFile.Name())
		if resp.StatusCode() >= 500 || resp.StatusCode() == http.StatusTooManyRequests {
			return "", &PublishError{Kind: Retryable, Message: "video download failed", StatusCode: resp.StatusCode()}
		}
		return "", &PublishError{Kind: Terminal, Message: "video download failed", StatusCode: resp.StatusCode()}
	}

	return tempFile.Name(), nil
}

func classifyGoogleError(err error) error {
	var gerr *googleapi.Error
	if !errors.As(err, &gerr) {
		return RetryableError("youtube upload: %v", err)
	}

	kind := Terminal
	if gerr.Code >= 500 || gerr.Code == http.StatusTooManyRequests {
		kind = Retryable
	}
	return &PublishError{Kind: kind, Message: gerr.Message, StatusCode: gerr.Code}
}

func videoTitle(caption string) string {
	title := strings.TrimSpace(strings.SplitN(caption, "\n", 2)[0])
	if title == "" {
		return "Untitled"
	}
	if utf8.RuneCountInString(title) > maxVideoTitleLength {
		title = string([]rune(title)[:maxVideoTitleLength])
	}
	return title
}
