package api

import (
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"net/http"
	"strings"
	"sync"
	"time"

	"clob/internal/ledger"
)

const sessionTTL = 24 * time.Hour

// Session represents an authenticated session
type Session struct {
	Token     string
	UserID    string
	Username  string
	ExpiresAt time.Time
}

// SessionStore manages active sessions with database persistence
type SessionStore struct {
	store  *ledger.Store
	mu     sync.RWMutex
	cache  map[string]*Session // In-memory cache for performance
	stopCh chan struct{}
}

func NewSessionStore(s *ledger.Store) *SessionStore {
	ss := &SessionStore{
		store:  s,
		cache:  make(map[string]*Session),
		stopCh: make(chan struct{}),
	}
	go ss.cleanupLoop()
	return ss
}

// cleanupLoop periodically removes expired sessions
func (ss *SessionStore) cleanupLoop() {
	ticker := time.NewTicker(5 * time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			ss.cleanup()
		case <-ss.stopCh:
			return
		}
	}
}

func (ss *SessionStore) cleanup() {
	ss.mu.Lock()
	now := time.Now()
	for token, session := range ss.cache {
		if now.After(session.ExpiresAt) {
			delete(ss.cache, token)
		}
	}
	ss.mu.Unlock()

	if ss.store != nil {
		ss.store.CleanupExpiredSessions()
	}
}

// Stop halts the cleanup goroutine
func (ss *SessionStore) Stop() {
	close(ss.stopCh)
}

func (ss *SessionStore) Create(userID, username string) *Session {
	ss.mu.Lock()
	defer ss.mu.Unlock()

	session := &Session{
		Token:     generateToken(),
		UserID:    userID,
		Username:  username,
		ExpiresAt: time.Now().Add(sessionTTL),
	}

	if ss.store != nil {
		ss.store.CreateSession(session.Token, userID, session.ExpiresAt)
	}
	ss.cache[session.Token] = session
	return session
}

func (ss *SessionStore) Get(token string) *Session {
	ss.mu.RLock()
	if session, ok := ss.cache[token]; ok {
		if time.Now().Before(session.ExpiresAt) {
			ss.mu.RUnlock()
			return session
		}
	}
	ss.mu.RUnlock()

	// Not in cache or expired, check database
	if ss.store != nil {
		dbSession, err := ss.store.GetSession(token)
		if err == nil && dbSession != nil {
			session := &Session{
				Token:     dbSession.Token,
				UserID:    dbSession.UserID,
				Username:  dbSession.Username,
				ExpiresAt: dbSession.ExpiresAt,
			}
			ss.mu.Lock()
			ss.cache[token] = session
			ss.mu.Unlock()
			return session
		}
	}

	return nil
}

func (ss *SessionStore) Delete(token string) {
	ss.mu.Lock()
	defer ss.mu.Unlock()
	delete(ss.cache, token)
	if ss.store != nil {
		ss.store.DeleteSession(token)
	}
}

func generateToken() string {
	b := make([]byte, 32)
	rand.Read(b)
	return hex.EncodeToString(b)
}

type RegisterRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type AuthResponse struct {
	Token    string `json:"token"`
	UserID   string `json:"user_id"`
	Username string `json:"username"`
}

func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	if s.store == nil {
		http.Error(w, "auth not available", http.StatusServiceUnavailable)
		return
	}

	var req RegisterRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if req.Username == "" || req.Password == "" {
		http.Error(w, "username and password required", http.StatusBadRequest)
		return
	}
	if len(req.Username) < 3 || len(req.Username) > 32 {
		http.Error(w, "username must be 3-32 characters", http.StatusBadRequest)
		return
	}
	if len(req.Password) < 6 {
		http.Error(w, "password must be at least 6 characters", http.StatusBadRequest)
		return
	}

	user, err := s.store.CreateUser(req.Username, req.Password)
	if err == ledger.ErrUserExists {
		http.Error(w, "username already taken", http.StatusConflict)
		return
	}
	if err != nil {
		s.log.Error().Err(err).Msg("create user failed")
		http.Error(w, "failed to create user", http.StatusInternalServerError)
		return
	}

	session := s.sessions.Create(user.ID, user.Username)

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(AuthResponse{
		Token:    session.Token,
		UserID:   user.ID,
		Username: user.Username,
	})
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	if s.store == nil {
		http.Error(w, "auth not available", http.StatusServiceUnavailable)
		return
	}

	var req LoginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}

	user, err := s.store.AuthenticateUser(req.Username, req.Password)
	if err == ledger.ErrUserNotFound || err == ledger.ErrInvalidPassword {
		http.Error(w, "invalid username or password", http.StatusUnauthorized)
		return
	}
	if err != nil {
		s.log.Error().Err(err).Msg("authenticate failed")
		http.Error(w, "login failed", http.StatusInternalServerError)
		return
	}

	session := s.sessions.Create(user.ID, user.Username)

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(AuthResponse{
		Token:    session.Token,
		UserID:   user.ID,
		Username: user.Username,
	})
}

func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	if token := bearerToken(r); token != "" {
		s.sessions.Delete(token)
	}
	w.WriteHeader(http.StatusOK)
}

// getSession resolves the session for a request, or nil.
func (s *Server) getSession(r *http.Request) *Session {
	token := bearerToken(r)
	if token == "" {
		return nil
	}
	return s.sessions.Get(token)
}

func bearerToken(r *http.Request) string {
	auth := r.Header.Get("Authorization")
	if strings.HasPrefix(auth, "Bearer ") {
		return strings.TrimPrefix(auth, "Bearer ")
	}
	return r.Header.Get("X-Session-Token")
}

// maker resolves the maker identity for a request: the authenticated
// username when a session is present, otherwise the X-Maker header for
// anonymous use. Empty means unidentified.
func (s *Server) maker(r *http.Request) string {
	if session := s.getSession(r); session != nil {
		return session.Username
	}
	return r.Header.Get("X-Maker")
}
