// Package spotify implements playback.Adapter on the Spotify Web API
// player endpoints.
//
// Spotify exposes audiobooks chapter by chapter, but Nara tracks positions on
// the whole-book timeline. Callers therefore pass [WithItemOffsets] when the
// book is split across several Spotify items; without it the item position is
// used as-is.
//
// User access tokens expire after an hour. Long-running callers build the
// adapter on [Credentials.TokenSource], which refreshes through the accounts
// service; [StaticToken] suits tests and short sessions.
package spotify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"golang.org/x/oauth2"

	"github.com/MrWong99/nara/pkg/playback"
)

const (
	defaultBaseURL  = "https://api.spotify.com/v1"
	defaultTokenURL = "https://accounts.spotify.com/api/token"
)

// Credentials are the app registration and user grant for the refresh-token
// flow.
type Credentials struct {
	ClientID     string
	ClientSecret string
	RefreshToken string

	// TokenURL overrides the accounts token endpoint. Intended for tests.
	TokenURL string
}

// TokenSource returns a source that fetches a new access token whenever the
// cached one is within a few seconds of expiry. ctx supplies the HTTP client
// for refreshes (see [oauth2.HTTPClient]) and must outlive the adapter.
func (c Credentials) TokenSource(ctx context.Context) oauth2.TokenSource {
	tokenURL := c.TokenURL
	if tokenURL == "" {
		tokenURL = defaultTokenURL
	}
	conf := &oauth2.Config{
		ClientID:     c.ClientID,
		ClientSecret: c.ClientSecret,
		Endpoint:     oauth2.Endpoint{TokenURL: tokenURL, AuthStyle: oauth2.AuthStyleInHeader},
	}
	return conf.TokenSource(ctx, &oauth2.Token{RefreshToken: c.RefreshToken})
}

// StaticToken returns a source that always yields the bearer token.
func StaticToken(token string) oauth2.TokenSource {
	return oauth2.StaticTokenSource(&oauth2.Token{AccessToken: token, TokenType: "Bearer"})
}

// Option is a functional option for configuring the Adapter.
type Option func(*Adapter)

// WithBaseURL overrides the Web API base URL. Intended for tests.
func WithBaseURL(u string) Option {
	return func(a *Adapter) {
		a.baseURL = strings.TrimRight(u, "/")
	}
}

// WithHTTPClient sets the HTTP client used for API calls.
func WithHTTPClient(c *http.Client) Option {
	return func(a *Adapter) {
		a.http = c
	}
}

// WithDeviceID targets a specific Spotify Connect device.
func WithDeviceID(id string) Option {
	return func(a *Adapter) {
		a.deviceID = id
	}
}

// WithItemOffsets maps a Spotify item id to its start offset on the book
// timeline, in seconds.
func WithItemOffsets(offsets map[string]float64) Option {
	return func(a *Adapter) {
		a.offsets = offsets
	}
}

// Adapter implements playback.Adapter for Spotify.
type Adapter struct {
	token    oauth2.TokenSource
	baseURL  string
	http     *http.Client
	deviceID string
	offsets  map[string]float64
}

var _ playback.Adapter = (*Adapter)(nil)

// New creates an Adapter. token must not be nil.
func New(token oauth2.TokenSource, opts ...Option) (*Adapter, error) {
	if token == nil {
		return nil, errors.New("spotify: token source must not be nil")
	}
	a := &Adapter{
		token:   token,
		baseURL: defaultBaseURL,
		http:    &http.Client{},
	}
	for _, o := range opts {
		o(a)
	}
	return a, nil
}

// apiError is the error envelope of the Web API.
type apiError struct {
	Error struct {
		Status  int    `json:"status"`
		Message string `json:"message"`
		Reason  string `json:"reason"`
	} `json:"error"`
}

// playerResponse is the subset of GET /me/player we consume.
type playerResponse struct {
	IsPlaying  bool  `json:"is_playing"`
	ProgressMs int64 `json:"progress_ms"`
	Item       *struct {
		ID string `json:"id"`
	} `json:"item"`
}

// Pause implements [playback.Adapter]. An already-paused player is not an
// error.
func (a *Adapter) Pause(ctx context.Context) error {
	err := a.do(ctx, http.MethodPut, "/me/player/pause", nil, nil)
	if isAlreadyInState(err) {
		return nil
	}
	return err
}

// Resume implements [playback.Adapter]. An already-playing player is not an
// error.
func (a *Adapter) Resume(ctx context.Context) error {
	err := a.do(ctx, http.MethodPut, "/me/player/play", nil, nil)
	if isAlreadyInState(err) {
		return nil
	}
	return err
}

// Seek implements [playback.Adapter]. seconds is converted to a position
// within the current item using the configured item offsets.
func (a *Adapter) Seek(ctx context.Context, seconds float64) error {
	if seconds < 0 {
		return fmt.Errorf("spotify: seek: negative position %v", seconds)
	}
	local := seconds
	if len(a.offsets) > 0 {
		st, err := a.rawState(ctx)
		if err != nil {
			return err
		}
		local = seconds - a.offsets[st.TrackID]
		if local < 0 {
			local = 0
		}
	}
	q := url.Values{}
	q.Set("position_ms", strconv.FormatInt(int64(math.Round(local*1000)), 10))
	return a.do(ctx, http.MethodPut, "/me/player/seek", q, nil)
}

// State implements [playback.Adapter]. PositionSeconds is on the book
// timeline.
func (a *Adapter) State(ctx context.Context) (playback.State, error) {
	st, err := a.rawState(ctx)
	if err != nil {
		return playback.State{}, err
	}
	st.PositionSeconds += a.offsets[st.TrackID]
	return st, nil
}

func (a *Adapter) rawState(ctx context.Context) (playback.State, error) {
	var pr playerResponse
	if err := a.do(ctx, http.MethodGet, "/me/player", nil, &pr); err != nil {
		return playback.State{}, err
	}
	st := playback.State{
		IsPlaying:       pr.IsPlaying,
		PositionSeconds: float64(pr.ProgressMs) / 1000,
	}
	if pr.Item != nil {
		st.TrackID = pr.Item.ID
	}
	return st, nil
}

// statusError carries a non-2xx response.
type statusError struct {
	status int
	reason string
	msg    string
}

func (e *statusError) Error() string {
	if e.reason != "" {
		return fmt.Sprintf("spotify: status %d (%s): %s", e.status, e.reason, e.msg)
	}
	return fmt.Sprintf("spotify: status %d: %s", e.status, e.msg)
}

// isAlreadyInState reports the 403 Spotify returns for pausing a paused
// player or resuming a playing one.
func isAlreadyInState(err error) bool {
	var se *statusError
	return errors.As(err, &se) && se.status == http.StatusForbidden && se.reason == "UNKNOWN"
}

func (a *Adapter) do(ctx context.Context, method, path string, q url.Values, out any) error {
	if a.deviceID != "" && method != http.MethodGet {
		if q == nil {
			q = url.Values{}
		}
		q.Set("device_id", a.deviceID)
	}
	u := a.baseURL + path
	if len(q) > 0 {
		u += "?" + q.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, method, u, nil)
	if err != nil {
		return fmt.Errorf("spotify: build request: %w", err)
	}
	tok, err := a.token.Token()
	if err != nil {
		return fmt.Errorf("spotify: token: %w", err)
	}
	tok.SetAuthHeader(req)

	resp, err := a.http.Do(req)
	if err != nil {
		return fmt.Errorf("spotify: %s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNoContent && method == http.MethodGet:
		// GET /me/player answers 204 when nothing is playing anywhere.
		return playback.ErrNoActiveDevice
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		if out == nil {
			_, _ = io.Copy(io.Discard, resp.Body)
			return nil
		}
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("spotify: decode %s: %w", path, err)
		}
		return nil
	}

	var ae apiError
	_ = json.NewDecoder(resp.Body).Decode(&ae)
	se := &statusError{status: resp.StatusCode, reason: ae.Error.Reason, msg: ae.Error.Message}
	if resp.StatusCode == http.StatusNotFound && ae.Error.Reason == "NO_ACTIVE_DEVICE" {
		return fmt.Errorf("%w: %s", playback.ErrNoActiveDevice, se)
	}
	return se
}
