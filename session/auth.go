package session

import (
	"encoding/json"
	"errors"
	"sync"

	"github.com/sirupsen/logrus"

	models "storefront/model"
	"storefront/store"
)

// AuthState holds the bearer credential and signed-in user of one session.
type AuthState struct {
	mu    sync.RWMutex
	store store.Store
	key   string
	log   logrus.FieldLogger
	token string
	user  models.User
}

type persistedAuth struct {
	Token string      `json:"token"`
	User  models.User `json:"user"`
}

func newAuthState(st store.Store, key string, log logrus.FieldLogger) *AuthState {
	a := &AuthState{store: st, key: key, log: log}
	a.restore()
	return a
}

func (a *AuthState) restore() {
	raw, err := a.store.Get(a.key)
	if err != nil {
		if !errors.Is(err, store.ErrNotFound) {
			a.log.WithError(err).Warn("could not read stored credential")
		}
		return
	}
	var p persistedAuth
	if err := json.Unmarshal([]byte(raw), &p); err != nil || p.Token == "" {
		a.log.Warn("discarding unreadable stored credential")
		_ = a.store.Remove(a.key)
		return
	}
	a.token, a.user = p.Token, p.User
}

// SignIn adopts the credential returned by a successful login.
func (a *AuthState) SignIn(res models.AuthResult) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.token, a.user = res.Token, res.User

	raw, err := json.Marshal(persistedAuth{Token: res.Token, User: res.User})
	if err == nil {
		err = a.store.Set(a.key, string(raw))
	}
	if err != nil {
		a.log.WithError(err).Warn("failed to persist credential")
	}
}

// SignOut drops the credential from memory and from the store.
func (a *AuthState) SignOut() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.token, a.user = "", models.User{}
	if err := a.store.Remove(a.key); err != nil {
		a.log.WithError(err).Warn("failed to remove stored credential")
	}
}

func (a *AuthState) Token() string {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.token
}

// User returns the signed-in user and whether there is one.
func (a *AuthState) User() (models.User, bool) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.user, a.token != ""
}

func (a *AuthState) OnLogout(reason string) {
	a.log.WithField("reason", reason).Info("signing out")
	a.SignOut()
}
