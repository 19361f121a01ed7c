package twitter

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"regexp"
	"time"

	"golang.org/x/oauth2"

	"raidbot/internal/models"
)

const apiBase = "https://api.twitter.com/2"

// Endpoint is the Twitter OAuth2 authorization-code endpoint pair.
var Endpoint = oauth2.Endpoint{
	AuthURL:  "https://twitter.com/i/oauth2/authorize",
	TokenURL: "https://api.twitter.com/2/oauth2/token",
}

var tweetLinkRe = regexp.MustCompile(`(?:twitter\.com|x\.com)/[^/]+/status/(\d+)`)

// ExtractTweetID pulls the numeric status ID out of a tweet link. Links that
// do not match the twitter.com / x.com status pattern are reported invalid.
func ExtractTweetID(link string) (string, bool) {
	m := tweetLinkRe.FindStringSubmatch(link)
	if m == nil {
		return "", false
	}
	return m[1], true
}

// OAuthConfig builds the PKCE authorization-code configuration used by the
// linking web service.
func OAuthConfig(clientID, clientSecret, redirectURL string) *oauth2.Config {
	return &oauth2.Config{
		ClientID:     clientID,
		ClientSecret: clientSecret,
		RedirectURL:  redirectURL,
		Endpoint:     Endpoint,
		Scopes:       []string{"tweet.read", "users.read", "like.read", "offline.access"},
	}
}

// Client calls the Twitter API v2 with a user access token.
type Client struct {
	httpClient *http.Client
	baseURL    string
}

func NewClient() *Client {
	return &Client{
		httpClient: &http.Client{Timeout: 10 * time.Second},
		baseURL:    apiBase,
	}
}

// User is the subset of the users/me response the bot needs.
type User struct {
	ID       string `json:"id"`
	Username string `json:"username"`
	Name     string `json:"name"`
}

// Me returns the authenticated user's profile.
func (c *Client) Me(ctx context.Context, accessToken string) (*User, error) {
	var resp struct {
		Data User `json:"data"`
	}
	if err := c.get(ctx, accessToken, c.baseURL+"/users/me", nil, &resp); err != nil {
		return nil, fmt.Errorf("fetch twitter profile: %w", err)
	}
	return &resp.Data, nil
}

// HasLiked reports whether the account's linked user liked the given tweet,
// by scanning the user's recent likes with their own access token.
func (c *Client) HasLiked(ctx context.Context, account *models.Account, tweetID string) (bool, error) {
	params := url.Values{"max_results": {"100"}}
	var resp struct {
		Data []struct {
			ID string `json:"id"`
		} `json:"data"`
	}
	endpoint := fmt.Sprintf("%s/users/%s/liked_tweets", c.baseURL, account.TwitterUserID)
	if err := c.get(ctx, account.TwitterAccessToken, endpoint, params, &resp); err != nil {
		return false, fmt.Errorf("fetch liked tweets: %w", err)
	}
	for _, tweet := range resp.Data {
		if tweet.ID == tweetID {
			return true, nil
		}
	}
	return false, nil
}

func (c *Client) get(ctx context.Context, accessToken, endpoint string, params url.Values, out interface{}) error {
	if len(params) > 0 {
		endpoint += "?" + params.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("twitter api returned %d", resp.StatusCode)
	}
	return json.NewDecoder(resp.Body).Decode(out)
}
