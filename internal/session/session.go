package session

import (
	"context"
	"fmt"
	"strconv"
	"sync"

	json "github.com/goccy/go-json"
	"go.uber.org/zap"

	"inboxai/internal/model"
)

// Durable storage keys. Both are cleared together on logout.
const (
	KeyAccessToken = "access_token"
	KeyUser        = "user"
)

// Storage is the durable key/value store the session lives in.
type Storage interface {
	Get(ctx context.Context, key string) (string, bool, error)
	Set(ctx context.Context, key, value string) error
	Delete(ctx context.Context, keys ...string) error
}

// TokenSink receives every bearer token change. The REST gateway implements
// it to attach or drop the Authorization header.
type TokenSink interface {
	SetToken(token string)
}

// Authenticated reports whether a session made of token and user is usable.
// Both halves are required: a token without a user sends the user back to
// login, a user without a token gets 401s from the backend.
func Authenticated(token string, user *model.User) bool {
	return token != "" && user != nil
}

// Store holds the current session. The zero value is not usable; call New.
type Store struct {
	mu      sync.RWMutex
	storage Storage
	sink    TokenSink
	log     *zap.Logger

	token string
	user  *model.User
}

// New builds a store over storage and loads whatever session it holds.
func New(ctx context.Context, storage Storage, sink TokenSink, log *zap.Logger) (*Store, error) {
	if log == nil {
		log = zap.NewNop()
	}
	s := &Store{storage: storage, sink: sink, log: log}
	if err := s.CheckAuth(ctx); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *Store) IsAuthenticated() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return Authenticated(s.token, s.user)
}

// User returns a copy of the current user, or nil.
func (s *Store) User() *model.User {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.user == nil {
		return nil
	}
	u := *s.user
	return &u
}

// CacheScope names the signed-in user's cache partition, or "" when
// signed out.
func (s *Store) CacheScope() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.user == nil {
		return ""
	}
	return "u" + strconv.FormatInt(s.user.ID, 10)
}

func (s *Store) Token() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.token
}

// SetToken persists token and hands it to the gateway. It never sets the
// user; callers that log in must call SetUser too.
func (s *Store) SetToken(ctx context.Context, token string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var err error
	if token == "" {
		err = s.storage.Delete(ctx, KeyAccessToken)
	} else {
		err = s.storage.Set(ctx, KeyAccessToken, token)
	}
	if err != nil {
		return fmt.Errorf("persist token: %w", err)
	}
	s.token = token
	s.pushToken(token)

	s.log.Debug("token set",
		zap.Int("token_len", len(token)),
		zap.Bool("has_user", s.user != nil),
		zap.Bool("authenticated", Authenticated(s.token, s.user)))
	return nil
}

// SetUser persists user, or removes the stored user when nil.
func (s *Store) SetUser(ctx context.Context, user *model.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if user == nil {
		if err := s.storage.Delete(ctx, KeyUser); err != nil {
			return fmt.Errorf("remove user: %w", err)
		}
		s.user = nil
	} else {
		b, err := json.Marshal(user)
		if err != nil {
			return fmt.Errorf("encode user: %w", err)
		}
		if err := s.storage.Set(ctx, KeyUser, string(b)); err != nil {
			return fmt.Errorf("persist user: %w", err)
		}
		u := *user
		s.user = &u
	}

	fields := []zap.Field{
		zap.Bool("has_token", s.token != ""),
		zap.Bool("authenticated", Authenticated(s.token, s.user)),
	}
	if s.user != nil {
		fields = append(fields, zap.Int64("user_id", s.user.ID))
	}
	s.log.Debug("user set", fields...)
	return nil
}

// Logout clears token and user unconditionally.
func (s *Store) Logout(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.token = ""
	s.user = nil
	s.pushToken("")
	if err := s.storage.Delete(ctx, KeyAccessToken, KeyUser); err != nil {
		return fmt.Errorf("clear session: %w", err)
	}
	s.log.Info("logged out")
	return nil
}

// CheckAuth re-reads the session from durable storage. An unreadable user
// record counts as no user.
func (s *Store) CheckAuth(ctx context.Context) error {
	token, _, err := s.storage.Get(ctx, KeyAccessToken)
	if err != nil {
		return fmt.Errorf("load token: %w", err)
	}
	raw, ok, err := s.storage.Get(ctx, KeyUser)
	if err != nil {
		return fmt.Errorf("load user: %w", err)
	}
	var user *model.User
	if ok && raw != "" {
		var u model.User
		if err := json.Unmarshal([]byte(raw), &u); err != nil {
			s.log.Warn("stored user unreadable", zap.Error(err))
		} else {
			user = &u
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.token = token
	s.user = user
	s.pushToken(token)

	s.log.Debug("session checked",
		zap.Bool("has_token", token != ""),
		zap.Bool("has_user", user != nil),
		zap.Bool("authenticated", Authenticated(token, user)))
	return nil
}

func (s *Store) pushToken(token string) {
	if s.sink != nil {
		s.sink.SetToken(token)
	}
}
