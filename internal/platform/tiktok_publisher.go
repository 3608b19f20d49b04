package platform

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/maheshrc27/postflow-dispatch/internal/models"
	"github.com/maheshrc27/postflow-dispatch/internal/transfer"
)

const (
	DefaultTikTokAPIURL = "https://open.tiktokapis.com"
	tiktokPrivacyPublic = "PUBLIC_TO_EVERYONE"
)

// TikTok error codes worth retrying.
var transientTikTokCodes = map[string]struct{}{
	"rate_limit_exceeded":      {},
	"spam_risk_too_many_posts": {},
	"internal_error":           {},
}

// TikTokPublisher direct-posts videos and photo carousels that TikTok pulls from their URLs.
// The returned provider post id is TikTok's publish id.
type TikTokPublisher struct {
	client *resty.Client
}

func NewTikTokPublisher(baseURL string) *TikTokPublisher {
	if baseURL == "" {
		baseURL = DefaultTikTokAPIURL
	}
	return &TikTokPublisher{
		client: resty.New().
			SetBaseURL(strings.TrimRight(baseURL, "/")).
			SetTimeout(60 * time.Second),
	}
}

func (t *TikTokPublisher) Publish(ctx context.Context, post *models.Post, credential *models.OAuthCredential) (*PublishResult, error) {
	if len(post.Media) == 0 {
		return nil, TerminalError("tiktok posts need a video or photos")
	}

	creator, err := t.creatorInfo(ctx, credential.AccessToken)
	if err != nil {
		return nil, err
	}
	privacy := privacyLevel(creator.PrivacyLevelOptions)
	title := ComposeMessage(post)

	var (
		path string
		body any
	)
	if len(post.Media) == 1 && MediaKindOf(post.Media[0].URL) == MediaKindVideo {
		path = "/v2/post/publish/video/init/"
		body = transfer.VideoUploadRequest{
			PostInfo: transfer.VideoPostInfo{
				Title:                 title,
				PrivacyLevel:          privacy,
				DisableDuet:           creator.DuetDisabled,
				DisableComment:        creator.CommentDisabled,
				DisableStitch:         creator.StitchDisabled,
				VideoCoverTimestampMs: 1000,
			},
			SourceInfo: transfer.VideoSourceInfo{Source: "PULL_FROM_URL", VideoURL: post.Media[0].URL},
		}
	} else {
		photos := make([]string, 0, len(post.Media))
		for i, m := range post.Media {
			if MediaKindOf(m.URL) != MediaKindImage {
				return nil, TerminalError("media %d: photo posts only accept images", i)
			}
			photos = append(photos, m.URL)
		}
		path = "/v2/post/publish/content/init/"
		body = transfer.PhotoUploadRequest{
			PostInfo: transfer.PhotoPostInfo{
				Title:          title,
				PrivacyLevel:   privacy,
				DisableComment: creator.CommentDisabled,
				AutoAddMusic:   true,
			},
			SourceInfo: transfer.PhotoSourceInfo{Source: "PULL_FROM_URL", PhotoImages: photos},
			PostMode:   "DIRECT_POST",
			MediaType:  "PHOTO",
		}
	}

	var result transfer.TikTokUploadResponse
	resp, err := t.client.R().
		SetContext(ctx).
		SetAuthToken(credential.AccessToken).
		SetHeader("Content-Type", "application/json; charset=UTF-8").
		SetBody(body).
		SetResult(&result).
		SetError(&result).
		Post(path)
	if err != nil {
		slog.Info(err.Error())
		return nil, RetryableError("tiktok request %s: %v", path, err)
	}
	if resp.IsError() || !tiktokOK(result.Error) {
		return nil, classifyTikTokError(resp.StatusCode(), result.Error)
	}
	if result.Data.PublishID == "" {
		return nil, RetryableError("tiktok response carried no publish id")
	}

	slog.Info("tiktok post published", "post_id", post.ID, "publish_id", result.Data.PublishID)

	return &PublishResult{
		ProviderPostID:    result.Data.PublishID,
		ProviderAccountID: credential.AccountID,
	}, nil
}

func (t *TikTokPublisher) creatorInfo(ctx context.Context, token string) (*transfer.TiktokCreatorInfo, error) {
	var result transfer.TikTokCreatorInfoResponse
	resp, err := t.client.R().
		SetContext(ctx).
		SetAuthToken(token).
		SetHeader("Content-Type", "application/json; charset=UTF-8").
		SetResult(&result).
		SetError(&result).
		Post("/v2/post/publish/creator_info/query/")
	if err != nil {
		slog.Info(err.Error())
		return nil, RetryableError("tiktok creator info: %v", err)
	}
	if resp.IsError() || !tiktokOK(result.Error) {
		return nil, classifyTikTokError(resp.StatusCode(), result.Error)
	}
	return &result.Data, nil
}

func privacyLevel(options []string) string {
	for _, o := range options {
		if o == tiktokPrivacyPublic {
			return o
		}
	}
	if len(options) > 0 {
		return options[0]
	}
	return tiktokPrivacyPublic
}

func tiktokOK(e transfer.TiktokError) bool {
	return e.Code == "" || e.Code == "ok"
}

func classifyTikTokError(status int, e transfer.TiktokError) *PublishError {
	msg := e.Message
	if msg == "" {
		msg = e.Code
	}
	if msg == "" {
		msg = http.StatusText(status)
	}

	pe := &PublishError{Kind: Terminal, Message: msg, StatusCode: status}
	if _, ok := transientTikTokCodes[e.Code]; ok || status == http.StatusTooManyRequests || status >= 500 {
		pe.Kind = Retryable
	}
	return pe
}

// TikTokRefresher exchanges refresh tokens at TikTok's token endpoint, which expects client_key
// instead of the standard client_id.
type TikTokRefresher struct {
	client       *resty.Client
	clientKey    string
	clientSecret string
}

func NewTikTokRefresher(baseURL, clientKey, clientSecret string) *TikTokRefresher {
	if baseURL == "" {
		baseURL = DefaultTikTokAPIURL
	}
	return &TikTokRefresher{
		client:       resty.New().SetBaseURL(strings.TrimRight(baseURL, "/")).SetTimeout(30 * time.Second),
		clientKey:    clientKey,
		clientSecret: clientSecret,
	}
}

func (r *TikTokRefresher) Refresh(ctx context.Context, credential *models.OAuthCredential) (*RefreshedToken, error) {
	if credential.RefreshToken == "" {
		return nil, fmt.Errorf("%w: credential %d has no refresh token", models.ErrRefreshUnsupported, credential.ID)
	}

	var token transfer.TiktokTokenResponse
	resp, err := r.client.R().
		SetContext(ctx).
		SetFormData(map[string]string{
			"client_key":    r.clientKey,
			"client_secret": r.clientSecret,
			"grant_type":    "refresh_token",
			"refresh_token": credential.RefreshToken,
		}).
		SetResult(&token).
		SetError(&token).
		Post("/v2/oauth/token/")
	if err != nil {
		return nil, fmt.Errorf("tiktok token refresh: %w", err)
	}
	if resp.IsError() || token.Error != "" || token.AccessToken == "" {
		return nil, fmt.Errorf("tiktok token refresh failed (status %d): %s %s", resp.StatusCode(), token.Error, token.ErrorDescription)
	}

	refreshed := &RefreshedToken{
		AccessToken:  token.AccessToken,
		RefreshToken: token.RefreshToken,
		ExpiresAt:    time.Now().Add(time.Duration(token.ExpiresIn) * time.Second),
	}
	if refreshed.RefreshToken == "" {
		refreshed.RefreshToken = credential.RefreshToken
	}
	return refreshed, nil
}
