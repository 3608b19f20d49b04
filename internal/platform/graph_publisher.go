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
	"golang.org/x/time/rate"
)

const DefaultGraphAPIURL = "https://graph.facebook.com/v21.0"

// Graph error codes that signal throttling or a temporary outage.
var transientGraphCodes = map[int]struct{}{
	1: {}, 2: {}, 4: {}, 17: {}, 32: {}, 341: {}, 368: {},
}

// graphClient is the throttled resty client shared by the Graph API family of publishers.
type graphClient struct {
	client  *resty.Client
	limiter *rate.Limiter
}

// newGraphClient throttles to perSecond outbound requests; a non-positive perSecond disables the throttle.
func newGraphClient(baseURL string, perSecond float64) *graphClient {
	limit := rate.Inf
	if perSecond > 0 {
		limit = rate.Limit(perSecond)
	}

	client := resty.New().
		SetBaseURL(strings.TrimRight(baseURL, "/")).
		SetTimeout(60 * time.Second).
		SetHeader("Accept", "application/json")

	return &graphClient{
		client:  client,
		limiter: rate.NewLimiter(limit, 1),
	}
}

// GraphPublisher publishes page posts through the Graph API.
type GraphPublisher struct {
	*graphClient
}

// NewGraphPublisher builds a publisher throttled to perSecond outbound requests.
// A non-positive perSecond disables the throttle.
func NewGraphPublisher(baseURL string, perSecond float64) *GraphPublisher {
	if baseURL == "" {
		baseURL = DefaultGraphAPIURL
	}
	return &GraphPublisher{graphClient: newGraphClient(baseURL, perSecond)}
}

func (g *GraphPublisher) Publish(ctx context.Context, post *models.Post, credential *models.OAuthCredential) (*PublishResult, error) {
	accountID := credential.AccountID
	if accountID == "" {
		accountID = post.AccountID
	}
	if accountID == "" {
		return nil, TerminalError("no page id for post %d", post.ID)
	}

	message := ComposeMessage(post)

	var (
		id  string
		err error
	)
	switch {
	case len(post.Media) == 0:
		form := map[string]string{"message": message}
		if len(post.Links) > 0 {
			form["link"] = post.Links[0]
		}
		id, err = g.post(ctx, credential.AccessToken, "/"+accountID+"/feed", form)
	case len(post.Media) == 1 && MediaKindOf(post.Media[0].URL) == MediaKindVideo:
		id, err = g.post(ctx, credential.AccessToken, "/"+accountID+"/videos", map[string]string{
			"file_url":    post.Media[0].URL,
			"description": message,
		})
	case len(post.Media) == 1:
		id, err = g.post(ctx, credential.AccessToken, "/"+accountID+"/photos", map[string]string{
			"url":     post.Media[0].URL,
			"caption": message,
		})
	default:
		id, err = g.publishAlbum(ctx, credential.AccessToken, accountID, message, post.Media)
	}
	if err != nil {
		return nil, err
	}

	slog.Info("graph post published", "post_id", post.ID, "provider_post_id", id)

	return &PublishResult{
		ProviderPostID:    id,
		ProviderAccountID: accountID,
	}, nil
}

// publishAlbum uploads each photo unpublished and attaches them to one feed post.
func (g *GraphPublisher) publishAlbum(ctx context.Context, token, accountID, message string, media []models.Media) (string, error) {
	form := map[string]string{"message": message}

	for i, m := range media {
		if MediaKindOf(m.URL) != MediaKindImage {
			return "", TerminalError("media %d: multi-item posts only accept images", i)
		}

		photoID, err := g.post(ctx, token, "/"+accountID+"/photos", map[string]string{
			"url":       m.URL,
			"published": "false",
		})
		if err != nil {
			return "", err
		}

		form[fmt.Sprintf("attached_media[%d]", i)] = fmt.Sprintf(`{"media_fbid":"%s"}`, photoID)
	}

	return g.post(ctx, token, "/"+accountID+"/feed", form)
}

func (g *graphClient) post(ctx context.Context, token, path string, form map[string]string) (string, error) {
	if err := g.limiter.Wait(ctx); err != nil {
		return "", RetryableError("throttle: %v", err)
	}

	var (
		result  transfer.GraphPublishResponse
		errResp transfer.GraphErrorResponse
	)

	resp, err := g.client.R().
		SetContext(ctx).
		SetQueryParam("access_token", token).
		SetFormData(form).
		SetResult(&result).
		SetError(&errResp).
		Post(path)
	if err != nil {
		slog.Info(err.Error())
		return "", RetryableError("graph request %s: %v", path, err)
	}

	if resp.IsError() {
		return "", classifyGraphError(resp.StatusCode(), &errResp)
	}

	if result.PostID != "" {
		return result.PostID, nil
	}
	if result.ID == "" {
		return "", RetryableError("graph response for %s carried no id", path)
	}
	return result.ID, nil
}

// get reads path into result.
func (g *graphClient) get(ctx context.Context, token, path string, query map[string]string, result any) error {
	if err := g.limiter.Wait(ctx); err != nil {
		return RetryableError("throttle: %v", err)
	}

	var errResp transfer.GraphErrorResponse
	resp, err := g.client.R().
		SetContext(ctx).
		SetQueryParam("access_token", token).
		SetQueryParams(query).
		SetResult(result).
		SetError(&errResp).
		Get(path)
	if err != nil {
		slog.Info(err.Error())
		return RetryableError("graph request %s: %v", path, err)
	}
	if resp.IsError() {
		return classifyGraphError(resp.StatusCode(), &errResp)
	}
	return nil
}

func classifyGraphError(status int, errResp *transfer.GraphErrorResponse) *PublishError {
	msg := errResp.Error.Message
	if msg == "" {
		msg = http.StatusText(status)
	}

	pe := &PublishError{Kind: Terminal, Message: msg, StatusCode: status}

	_, transientCode := transientGraphCodes[errResp.Error.Code]
	if status == http.StatusTooManyRequests || status >= 500 || errResp.Error.IsTransient || transientCode {
		pe.Kind = Retryable
	}

	return pe
}

// ComposeMessage renders the caption followed by hashtags and mentions.
func ComposeMessage(post *models.Post) string {
	var b strings.Builder
	b.WriteString(post.Caption)

	var tags []string
	for _, h := range post.Hashtags {
		if h == "" {
			continue
		}
		if !strings.HasPrefix(h, "#") {
			h = "#" + h
		}
		tags = append(tags, h)
	}
	for _, m := range post.Mentions {
		if m == "" {
			continue
		}
		if !strings.HasPrefix(m, "@") {
			m = "@" + m
		}
		tags = append(tags, m)
	}

	if len(tags) > 0 {
		if b.Len() > 0 {
			b.WriteString("\n\n")
		}
		b.WriteString(strings.Join(tags, " "))
	}

	return b.String()
}
