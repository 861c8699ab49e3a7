package session

import (
	"context"
	"crypto/sha256"
	"net/http"

	"github.com/gorilla/sessions"

	"github.com/hibikilabs/hibiki/pkg/logging"
)

const (
	sessionName   = "hibiki_session"
	sessionMaxAge = 86400 * 7 // 7 days
)

// Session value keys written by the external OpenID relying party
const (
	keyUserID      = "user_id"
	keyDisplayName = "display_name"
	keyAvatar      = "avatar"
)

// Identity is the authenticated user carried by the session cookie
type Identity struct {
	ID          string `json:"id"`
	DisplayName string `json:"displayName"`
	Avatar      string `json:"avatar,omitempty"`
}

// Manager reads identities out of the shared cookie store. Login and
// logout live in the external relying party; this process only verifies.
type Manager struct {
	store  *sessions.CookieStore
	logger logging.Logger
}

// NewManager creates a session manager keyed from the shared secret
func NewManager(secret string, secureCookies bool, logger logging.Logger) *Manager {
	authKey := deriveKey(secret)
	encKey := deriveKey(secret + "encryption")

	store := sessions.NewCookieStore(authKey, encKey)
	store.Options = &sessions.Options{
		Path:     "/",
		MaxAge:   sessionMaxAge,
		HttpOnly: true,
		Secure:   secureCookies,
		SameSite: http.SameSiteLaxMode,
	}

	return &Manager{
		store:  store,
		logger: logger,
	}
}

// deriveKey hashes the seed to the 32 bytes the cookie codec wants
func deriveKey(seed string) []byte {
	hasher := sha256.New()
	hasher.Write([]byte(seed))
	return hasher.Sum(nil)
}

// SaveIdentity writes the identity into the session cookie. The relying
// party calls this after a successful OpenID exchange.
func (m *Manager) SaveIdentity(w http.ResponseWriter, r *http.Request, identity *Identity) error {
	sess, err := m.store.Get(r, sessionName)
	if err != nil {
		// A stale or foreign cookie decodes to an error but still yields a
		// fresh session, which is what we overwrite anyway
		m.logger.Warn("Replacing undecodable session cookie", map[string]interface{}{
			"error": err.Error(),
		})
	}

	sess.Values[keyUserID] = identity.ID
	sess.Values[keyDisplayName] = identity.DisplayName
	sess.Values[keyAvatar] = identity.Avatar

	return sess.Save(r, w)
}

// Identity returns the authenticated user for the request, or nil
// A cookie that fails to decode counts as unauthenticated, not as an error
func (m *Manager) Identity(r *http.Request) *Identity {
	sess, err := m.store.Get(r, sessionName)
	if err != nil || sess.IsNew {
		return nil
	}

	id, _ := sess.Values[keyUserID].(string)
	if id == "" {
		return nil
	}

	displayName, _ := sess.Values[keyDisplayName].(string)
	avatar, _ := sess.Values[keyAvatar].(string)

	return &Identity{
		ID:          id,
		DisplayName: displayName,
		Avatar:      avatar,
	}
}

type contextKey struct{}

// WithIdentity stores the identity on the context
func WithIdentity(ctx context.Context, identity *Identity) context.Context {
	return context.WithValue(ctx, contextKey{}, identity)
}

// IdentityFromContext returns the identity placed by the middleware, or nil
func IdentityFromContext(ctx context.Context) *Identity {
	identity, _ := ctx.Value(contextKey{}).(*Identity)
	return identity
}

// Middleware resolves the session once per request and puts the identity
// (or nil) on the request context
func (m *Manager) Middleware() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if identity := m.Identity(r); identity != nil {
				r = r.WithContext(WithIdentity(r.Context(), identity))
			}
			next.ServeHTTP(w, r)
		})
	}
}
