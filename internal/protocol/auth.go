package protocol

import (
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/synapsedb/synapse/internal/apperr"
)

// ClientCert describes one registered client certificate thumbprint: the
// client identity it authenticates as, its expiry, and the scopes it is
// authorized for (§4.6 "a client certificate thumbprint with expiry/scope
// checks"). Thumbprints are registered out of band (config), not extracted
// from a live TLS handshake, since the Tool Protocol Layer runs over stdio,
// not TLS — the same reason API keys are a static config-driven map rather
// than a certificate store lookup.
type ClientCert struct {
	ClientID  string
	ExpiresAt time.Time
	Scopes    []string
}

// Authenticator verifies the credential presented with every request.
// Three credential forms are accepted: an HMAC-signed bearer token, a
// static API key mapped to a client identity, or a client certificate
// thumbprint with expiry/scope checks (§4.6). None has a default;
// construction fails closed if no signing secret is configured.
type Authenticator struct {
	signingKey    []byte
	apiKeys       map[string]string
	clientCerts   map[string]ClientCert
	requiredScope string
}

// NewAuthenticator builds an Authenticator. signingSecret must be at least
// 32 bytes; this is enforced at config validation time, not here, since a
// misconfigured engine should fail at startup rather than per-request.
// clientCerts is keyed by thumbprint (lowercase hex); requiredScope is the
// scope every thumbprint credential must carry (empty disables the check).
func NewAuthenticator(signingSecret string, apiKeys map[string]string, clientCerts map[string]ClientCert, requiredScope string) *Authenticator {
	return &Authenticator{
		signingKey:    []byte(signingSecret),
		apiKeys:       apiKeys,
		clientCerts:   clientCerts,
		requiredScope: requiredScope,
	}
}

// claims is the minimal claim set the engine trusts: a subject identifying
// the calling client, used as the rate limiter's per-client key.
type claims struct {
	jwt.RegisteredClaims
}

// Authenticate validates a raw "Authorization" header value and returns the
// client identity it names. Every method, including initialize, requires a
// credential (§4.6); there is no anonymous path. Accepted schemes are
// "Bearer <jwt-or-api-key>" and "Thumbprint <hex-sha256>".
func (a *Authenticator) Authenticate(header string) (clientID string, err error) {
	if header == "" {
		return "", apperr.Unauthenticatedf(nil, "authorization header required")
	}

	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 {
		return "", apperr.Unauthenticatedf(nil, "authorization header must be 'Bearer <credential>' or 'Thumbprint <hex>'")
	}
	scheme, credential := parts[0], parts[1]

	switch {
	case strings.EqualFold(scheme, "bearer"):
		return a.authenticateBearer(credential)
	case strings.EqualFold(scheme, "thumbprint"):
		return a.authenticateThumbprint(credential)
	default:
		return "", apperr.Unauthenticatedf(nil, "unsupported authorization scheme %q", scheme)
	}
}

func (a *Authenticator) authenticateBearer(token string) (string, error) {
	if clientID, ok := a.apiKeys[token]; ok {
		return clientID, nil
	}

	parsed, err := jwt.ParseWithClaims(token, &claims{}, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, apperr.Unauthenticatedf(nil, "unexpected signing method %v", t.Header["alg"])
		}
		return a.signingKey, nil
	}, jwt.WithValidMethods([]string{"HS256", "HS384", "HS512"}))
	if err != nil {
		return "", apperr.Unauthenticatedf(nil, "invalid bearer token: %v", err)
	}

	c, ok := parsed.Claims.(*claims)
	if !ok || !parsed.Valid || c.Subject == "" {
		return "", apperr.Unauthenticatedf(nil, "bearer token missing subject claim")
	}
	return c.Subject, nil
}

// authenticateThumbprint resolves credential (a hex-encoded certificate
// fingerprint) against the registered client-certificate table, rejecting
// expired certificates and certificates missing the required scope (§4.6).
func (a *Authenticator) authenticateThumbprint(thumbprint string) (string, error) {
	cert, ok := a.clientCerts[strings.ToLower(thumbprint)]
	if !ok {
		return "", apperr.Unauthenticatedf(nil, "unrecognized client certificate thumbprint")
	}
	if !cert.ExpiresAt.IsZero() && time.Now().After(cert.ExpiresAt) {
		return "", apperr.Unauthenticatedf(nil, "client certificate expired at %s", cert.ExpiresAt)
	}
	if a.requiredScope != "" && !hasScope(cert.Scopes, a.requiredScope) {
		return "", apperr.Unauthenticatedf(nil, "client certificate missing required scope %q", a.requiredScope)
	}
	return cert.ClientID, nil
}

func hasScope(scopes []string, required string) bool {
	for _, s := range scopes {
		if s == required {
			return true
		}
	}
	return false
}
