package auth

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"golang.org/x/oauth2"

	"raidbot/internal/storage"
	"raidbot/internal/twitter"
)

type stubOAuth struct {
	exchangeErr error
	token       *oauth2.Token
	lastState   string
}

func (s *stubOAuth) AuthCodeURL(state string, opts ...oauth2.AuthCodeOption) string {
	s.lastState = state
	return "https://twitter.example/authorize?state=" + url.QueryEscape(state)
}

func (s *stubOAuth) Exchange(ctx context.Context, code string, opts ...oauth2.AuthCodeOption) (*oauth2.Token, error) {
	if s.exchangeErr != nil {
		return nil, s.exchangeErr
	}
	if s.token != nil {
		return s.token, nil
	}
	return &oauth2.Token{AccessToken: "access-" + code, RefreshToken: "refresh-" + code}, nil
}

type stubProfile struct {
	user *twitter.User
	err  error
}

func (s *stubProfile) Me(ctx context.Context, accessToken string) (*twitter.User, error) {
	return s.user, s.err
}

type recordingLinker struct {
	err   error
	tgID  int64
	link  storage.TwitterLink
	calls int
}

func (l *recordingLinker) LinkTwitter(ctx context.Context, telegramID int64, link storage.TwitterLink) error {
	l.calls++
	l.tgID = telegramID
	l.link = link
	return l.err
}

type recordingAuthNotifier struct {
	tgID   int64
	handle string
}

func (n *recordingAuthNotifier) TwitterLinked(ctx context.Context, telegramID int64, handle string) {
	n.tgID = telegramID
	n.handle = handle
}

type authRig struct {
	server *Server
	oauth  *stubOAuth
	linker *recordingLinker
	notify *recordingAuthNotifier
}

func newAuthRig(t *testing.T) *authRig {
	t.Helper()
	oauth := &stubOAuth{}
	linker := &recordingLinker{}
	notify := &recordingAuthNotifier{}
	profile := &stubProfile{user: &twitter.User{ID: "42", Username: "kaiju"}}
	server := NewServer(oauth, profile, linker, notify, "test-secret", zap.NewNop())
	rig := &authRig{server: server, oauth: oauth, linker: linker, notify: notify}
	return rig
}

func (rig *authRig) request(t *testing.T, target string) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, target, nil)
	rig.server.Routes().ServeHTTP(rec, req)
	return rec
}

// connect runs the first leg of the flow and returns the issued state.
func (rig *authRig) connect(t *testing.T, tgid string) string {
	t.Helper()
	rec := rig.request(t, "/twitter/connect?tgid="+tgid)
	require.Equal(t, http.StatusFound, rec.Code)
	redirect, err := url.Parse(rec.Header().Get("Location"))
	require.NoError(t, err)
	return redirect.Query().Get("state")
}

func TestConnect_RequiresTelegramID(t *testing.T) {
	rig := newAuthRig(t)

	rec := rig.request(t, "/twitter/connect")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = rig.request(t, "/twitter/connect?tgid=abc")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestConnect_RedirectsWithSignedState(t *testing.T) {
	rig := newAuthRig(t)

	state := rig.connect(t, "100")
	require.NotEmpty(t, state)
	assert.Equal(t, rig.oauth.lastState, state)

	tgid, ok := rig.server.verifyState(state)
	assert.True(t, ok)
	assert.Equal(t, int64(100), tgid)
}

func TestCallback_MissingParams(t *testing.T) {
	rig := newAuthRig(t)

	rec := rig.request(t, "/twitter/callback")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = rig.request(t, "/twitter/callback?code=abc")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestCallback_TamperedState(t *testing.T) {
	rig := newAuthRig(t)
	state := rig.connect(t, "100")

	// Changing the Telegram ID invalidates the signature.
	tampered := "999" + state[3:]
	rec := rig.request(t, "/twitter/callback?code=abc&state="+url.QueryEscape(tampered))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Zero(t, rig.linker.calls)
}

func TestCallback_UnknownState(t *testing.T) {
	rig := newAuthRig(t)

	// A correctly signed state that never went through connect has no
	// pending verifier and is refused.
	state := rig.server.signState(100, "nonce")
	rec := rig.request(t, "/twitter/callback?code=abc&state="+url.QueryEscape(state))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "session expired")
}

func TestCallback_StateSingleUse(t *testing.T) {
	rig := newAuthRig(t)
	state := rig.connect(t, "100")

	rec := rig.request(t, "/twitter/callback?code=abc&state="+url.QueryEscape(state))
	require.Equal(t, http.StatusOK, rec.Code)

	rec = rig.request(t, "/twitter/callback?code=abc&state="+url.QueryEscape(state))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, 1, rig.linker.calls)
}

func TestCallback_LinksAccount(t *testing.T) {
	rig := newAuthRig(t)
	expiry := time.Now().Add(2 * time.Hour)
	rig.oauth.token = &oauth2.Token{
		AccessToken:  "at",
		RefreshToken: "rt",
		Expiry:       expiry,
	}

	state := rig.connect(t, "100")
	rec := rig.request(t, "/twitter/callback?code=abc&state="+url.QueryEscape(state))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "@kaiju connected")

	assert.Equal(t, int64(100), rig.linker.tgID)
	assert.Equal(t, "kaiju", rig.linker.link.Handle)
	assert.Equal(t, "42", rig.linker.link.UserID)
	assert.Equal(t, "at", rig.linker.link.AccessToken)
	assert.Equal(t, "rt", rig.linker.link.RefreshToken)
	require.NotNil(t, rig.linker.link.ExpiresAt)
	assert.WithinDuration(t, expiry, *rig.linker.link.ExpiresAt, time.Second)

	assert.Equal(t, int64(100), rig.notify.tgID)
	assert.Equal(t, "kaiju", rig.notify.handle)
}

func TestCallback_ExchangeFailure(t *testing.T) {
	rig := newAuthRig(t)
	rig.oauth.exchangeErr = errors.New("invalid code")

	state := rig.connect(t, "100")
	rec := rig.request(t, "/twitter/callback?code=abc&state="+url.QueryEscape(state))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Zero(t, rig.linker.calls)
}

func TestCallback_HandleTaken(t *testing.T) {
	rig := newAuthRig(t)
	rig.linker.err = storage.ErrHandleTaken

	state := rig.connect(t, "100")
	rec := rig.request(t, "/twitter/callback?code=abc&state="+url.QueryEscape(state))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "already linked")
}

func TestCallback_LinkerFailure(t *testing.T) {
	rig := newAuthRig(t)
	rig.linker.err = errors.New("database down")

	state := rig.connect(t, "100")
	rec := rig.request(t, "/twitter/callback?code=abc&state="+url.QueryEscape(state))
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}
