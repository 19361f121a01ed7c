package auth

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/oauth2"

	"raidbot/internal/storage"
	"raidbot/internal/twitter"
)

// TokenExchanger is the OAuth dance; *oauth2.Config satisfies it.
type TokenExchanger interface {
	AuthCodeURL(state string, opts ...oauth2.AuthCodeOption) string
	Exchange(ctx context.Context, code string, opts ...oauth2.AuthCodeOption) (*oauth2.Token, error)
}

// ProfileFetcher resolves an access token to the Twitter profile behind it.
type ProfileFetcher interface {
	Me(ctx context.Context, accessToken string) (*twitter.User, error)
}

// Linker persists the external identity against the account.
type Linker interface {
	LinkTwitter(ctx context.Context, telegramID int64, link storage.TwitterLink) error
}

// Notifier tells the user in chat that linking finished. Best-effort.
type Notifier interface {
	TwitterLinked(ctx context.Context, telegramID int64, handle string)
}

const stateTTL = 10 * time.Minute

type pendingAuth struct {
	telegramID int64
	verifier   string
	createdAt  time.Time
}

// Server is the Twitter linking web service: one endpoint starts the PKCE
// authorization-code flow, the callback finishes it.
type Server struct {
	oauth   TokenExchanger
	profile ProfileFetcher
	linker  Linker
	notify  Notifier
	secret  []byte
	logger  *zap.Logger

	mu      sync.Mutex
	pending map[string]pendingAuth
}

func NewServer(oauth TokenExchanger, profile ProfileFetcher, linker Linker, notify Notifier, signingSecret string, logger *zap.Logger) *Server {
	return &Server{
		oauth:   oauth,
		profile: profile,
		linker:  linker,
		notify:  notify,
		secret:  []byte(signingSecret),
		logger:  logger,
		pending: make(map[string]pendingAuth),
	}
}

// Routes mounts the linking endpoints on a chi router.
func (s *Server) Routes() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Get("/twitter/connect", s.handleConnect)
	r.Get("/twitter/callback", s.handleCallback)
	return r
}

// handleConnect begins the OAuth flow for the Telegram user passed as tgid.
func (s *Server) handleConnect(w http.ResponseWriter, r *http.Request) {
	tgidParam := r.URL.Query().Get("tgid")
	if tgidParam == "" {
		http.Error(w, "missing tgid", http.StatusBadRequest)
		return
	}
	telegramID, err := strconv.ParseInt(tgidParam, 10, 64)
	if err != nil {
		http.Error(w, "invalid tgid", http.StatusBadRequest)
		return
	}

	state := s.signState(telegramID, uuid.NewString())
	verifier := oauth2.GenerateVerifier()

	s.mu.Lock()
	s.prunePendingLocked(time.Now())
	s.pending[state] = pendingAuth{
		telegramID: telegramID,
		verifier:   verifier,
		createdAt:  time.Now(),
	}
	s.mu.Unlock()

	url := s.oauth.AuthCodeURL(state, oauth2.S256ChallengeOption(verifier))
	http.Redirect(w, r, url, http.StatusFound)
}

// handleCallback exchanges the authorization code, resolves the handle, and
// persists the link.
func (s *Server) handleCallback(w http.ResponseWriter, r *http.Request) {
	state := r.URL.Query().Get("state")
	code := r.URL.Query().Get("code")
	if state == "" || code == "" {
		http.Error(w, "missing state or code", http.StatusBadRequest)
		return
	}
	telegramID, ok := s.verifyState(state)
	if !ok {
		http.Error(w, "invalid state", http.StatusBadRequest)
		return
	}

	s.mu.Lock()
	auth, found := s.pending[state]
	delete(s.pending, state)
	s.mu.Unlock()
	if !found || time.Since(auth.createdAt) > stateTTL {
		http.Error(w, "session expired, try again", http.StatusBadRequest)
		return
	}

	token, err := s.oauth.Exchange(r.Context(), code, oauth2.VerifierOption(auth.verifier))
	if err != nil {
		s.logger.Error("token exchange failed", zap.Int64("telegram_id", telegramID), zap.Error(err))
		http.Error(w, "failed to exchange authorization code", http.StatusBadRequest)
		return
	}

	profile, err := s.profile.Me(r.Context(), token.AccessToken)
	if err != nil {
		s.logger.Error("profile fetch failed", zap.Int64("telegram_id", telegramID), zap.Error(err))
		http.Error(w, "failed to fetch twitter profile", http.StatusBadRequest)
		return
	}

	link := storage.TwitterLink{
		Handle:       profile.Username,
		UserID:       profile.ID,
		AccessToken:  token.AccessToken,
		RefreshToken: token.RefreshToken,
	}
	if !token.Expiry.IsZero() {
		expiry := token.Expiry
		link.ExpiresAt = &expiry
	}

	if err := s.linker.LinkTwitter(r.Context(), telegramID, link); err != nil {
		if errors.Is(err, storage.ErrHandleTaken) {
			http.Error(w, fmt.Sprintf("@%s is already linked to another account", profile.Username), http.StatusBadRequest)
			return
		}
		s.logger.Error("failed to persist twitter link", zap.Int64("telegram_id", telegramID), zap.Error(err))
		http.Error(w, "failed to save twitter link", http.StatusInternalServerError)
		return
	}

	s.notify.TwitterLinked(r.Context(), telegramID, profile.Username)

	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	fmt.Fprintf(w, "Twitter account @%s connected! You can close this window.", profile.Username)
}

// signState binds the Telegram ID into the OAuth state parameter:
// "<tgid>.<nonce>.<hmac>".
func (s *Server) signState(telegramID int64, nonce string) string {
	payload := fmt.Sprintf("%d.%s", telegramID, nonce)
	return payload + "." + s.sign(payload)
}

func (s *Server) verifyState(state string) (int64, bool) {
	parts := strings.Split(state, ".")
	if len(parts) != 3 {
		return 0, false
	}
	payload := parts[0] + "." + parts[1]
	if !hmac.Equal([]byte(s.sign(payload)), []byte(parts[2])) {
		return 0, false
	}
	telegramID, err := strconv.ParseInt(parts[0], 10, 64)
	if err != nil {
		return 0, false
	}
	return telegramID, true
}

func (s *Server) sign(payload string) string {
	mac := hmac.New(sha256.New, s.secret)
	mac.Write([]byte(payload))
	return hex.EncodeToString(mac.Sum(nil))
}

// prunePendingLocked drops expired flow state. Caller holds the lock.
func (s *Server) prunePendingLocked(now time.Time) {
	for state, auth := range s.pending {
		if now.Sub(auth.createdAt) > stateTTL {
			delete(s.pending, state)
		}
	}
}
