package platform

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/maheshrc27/postflow-dispatch/internal/models"
	"github.com/maheshrc27/postflow-dispatch/internal/transfer"
)

const (
	DefaultInstagramAPIURL  = "https://graph.instagram.com/v21.0"
	DefaultInstagramAuthURL = "https://graph.instagram.com"

	containerPollInterval = 5 * time.Second
	containerPollAttempts = 20
)

// InstagramPublisher publishes through media containers: create, wait until FINISHED, then media_publish.
type InstagramPublisher struct {
	*graphClient
	pollInterval time.Duration
}

func NewInstagramPublisher(baseURL string, perSecond float64) *InstagramPublisher {
	if baseURL == "" {
		baseURL = DefaultInstagramAPIURL
	}
	return &InstagramPublisher{
		graphClient:  newGraphClient(baseURL, perSecond),
		pollInterval: containerPollInterval,
	}
}

func (ig *InstagramPublisher) Publish(ctx context.Context, post *models.Post, credential *models.OAuthCredential) (*PublishResult, error) {
	accountID := credential.AccountID
	if accountID == "" {
		accountID = post.AccountID
	}
	if accountID == "" {
		return nil, TerminalError("no instagram account id for post %d", post.ID)
	}
	if len(post.Media) == 0 {
		return nil, TerminalError("instagram posts need at least one image or video")
	}

	token := credential.AccessToken
	caption := ComposeMessage(post)

	var (
		containerID string
		err         error
	)
	if len(post.Media) == 1 {
		form, ferr := containerForm(post.Media[0].URL)
		if ferr != nil {
			return nil, ferr
		}
		form["caption"] = caption
		containerID, err = ig.post(ctx, token, "/"+accountID+"/media", form)
	} else {
		containerID, err = ig.carouselContainer(ctx, token, accountID, caption, post.Media)
	}
	if err != nil {
		return nil, err
	}

	if err := ig.waitForContainer(ctx, token, containerID); err != nil {
		return nil, err
	}

	mediaID, err := ig.post(ctx, token, "/"+accountID+"/media_publish", map[string]string{"creation_id": containerID})
	if err != nil {
		return nil, err
	}

	slog.Info("instagram post published", "post_id", post.ID, "media_id", mediaID)

	return &PublishResult{
		ProviderPostID:    mediaID,
		ProviderAccountID: accountID,
	}, nil
}

func (ig *InstagramPublisher) carouselContainer(ctx context.Context, token, accountID, caption string, media []models.Media) (string, error) {
	children := make([]string, 0, len(media))
	for i, m := range media {
		form, err := containerForm(m.URL)
		if err != nil {
			return "", fmt.Errorf("media %d: %w", i, err)
		}
		if form["media_type"] == "REELS" {
			form["media_type"] = "VIDEO"
		}
		form["is_carousel_item"] = "true"

		id, err := ig.post(ctx, token, "/"+accountID+"/media", form)
		if err != nil {
			return "", err
		}
		if err := ig.waitForContainer(ctx, token, id); err != nil {
			return "", err
		}
		children = append(children, id)
	}

	return ig.post(ctx, token, "/"+accountID+"/media", map[string]string{
		"media_type": "CAROUSEL",
		"caption":    caption,
		"children":   strings.Join(children, ","),
	})
}

func containerForm(url string) (map[string]string, error) {
	switch MediaKindOf(url) {
	case MediaKindImage:
		return map[string]string{"image_url": url}, nil
	case MediaKindVideo:
		return map[string]string{"media_type": "REELS", "video_url": url}, nil
	}
	return nil, TerminalError("unsupported instagram media %s", url)
}

// waitForContainer polls the container until instagram finished ingesting its media.
func (ig *InstagramPublisher) waitForContainer(ctx context.Context, token, containerID string) error {
	for attempt := 0; attempt < containerPollAttempts; attempt++ {
		var status transfer.InstagramContainerStatus
		if err := ig.get(ctx, token, "/"+containerID, map[string]string{"fields": "status_code,status"}, &status); err != nil {
			return err
		}

		switch status.StatusCode {
		case "FINISHED", "PUBLISHED":
			return nil
		case "ERROR":
			return TerminalError("instagram container %s failed: %s", containerID, status.Status)
		case "EXPIRED":
			return TerminalError("instagram container %s expired", containerID)
		}

		select {
		case <-ctx.Done():
			return RetryableError("waiting for instagram container %s: %v", containerID, ctx.Err())
		case <-time.After(ig.pollInterval):
		}
	}
	return RetryableError("instagram container %s still processing", containerID)
}

// InstagramRefresher extends long-lived instagram tokens with ig_refresh_token.
// The long-lived access token doubles as the refresh token.
type InstagramRefresher struct {
	client *resty.Client
}

func NewInstagramRefresher(baseURL string) *InstagramRefresher {
	if baseURL == "" {
		baseURL = DefaultInstagramAuthURL
	}
	return &InstagramRefresher{
		client: resty.New().SetBaseURL(strings.TrimRight(baseURL, "/")).SetTimeout(30 * time.Second),
	}
}

func (r *InstagramRefresher) Refresh(ctx context.Context, credential *models.OAuthCredential) (*RefreshedToken, error) {
	current := credential.RefreshToken
	if current == "" {
		current = credential.AccessToken
	}
	if current == "" {
		return nil, fmt.Errorf("%w: credential %d has no token to extend", models.ErrRefreshUnsupported, credential.ID)
	}

	var (
		token   transfer.InstagramTokenResponse
		errResp transfer.GraphErrorResponse
	)
	resp, err := r.client.R().
		SetContext(ctx).
		SetQueryParams(map[string]string{
			"grant_type":   "ig_refresh_token",
			"access_token": current,
		}).
		SetResult(&token).
		SetError(&errResp).
		Get("/refresh_access_token")
	if err != nil {
		return nil, fmt.Errorf("instagram token refresh: %w", err)
	}
	if resp.IsError() || token.AccessToken == "" {
		return nil, fmt.Errorf("instagram token refresh failed (status %d): %s", resp.StatusCode(), errResp.Error.Message)
	}

	refreshed := &RefreshedToken{
		AccessToken: token.AccessToken,
		ExpiresAt:   time.Now().Add(time.Duration(token.ExpiresIn) * time.Second),
	}
	if credential.RefreshToken != "" {
		refreshed.RefreshToken = token.AccessToken
	}
	return refreshed, nil
}
