package auth

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"net/http"
	"strings"
)

// Mode is the flat authorization state resolved once per request. There is
// no hierarchy: a request is exactly one of the three.
type Mode string

const (
	// ModeStandard is an authenticated player. Full read access plus writes
	// to their own photo set only.
	ModeStandard Mode = "standard"
	// ModeVisitor is the anonymous read-only default.
	ModeVisitor Mode = "visitor"
	// ModeMedia is an accredited photographer holding the shared media access
	// key. Write access to any player's photo set.
	ModeMedia Mode = "media"
)

// Header names carrying credentials. Absence of both means visitor.
const (
	HeaderMediaKey = "X-Api-Key"
	HeaderSelfID   = "X-Self-Id"
)

var (
	// ErrPermissionDenied covers the wrong mode for a mutation, a bad media
	// key, a standard write to someone else's profile, and an ownership tag
	// mismatch on delete. Callers map it to 403.
	ErrPermissionDenied = errors.New("permission denied")

	// ErrNotConfigured means the server has no media key or signing secret
	// and cannot authorize that class of write at all.
	ErrNotConfigured = errors.New("credential verification not configured")
)

// Identity is a resolved request identity: the mode plus its mode-specific
// credential material. Visitor carries nothing.
type Identity struct {
	Mode     Mode
	ActorID  string // standard: the player id the credential claims
	MediaKey string // media: the presented access key
}

// Authorizer derives and verifies photo ownership tags. Tags are one-way
// values, so the store never holds raw key or identity material.
type Authorizer struct {
	mediaKey   string
	hmacSecret []byte
}

func New(mediaKey, hmacSecret string) *Authorizer {
	return &Authorizer{
		mediaKey:   strings.TrimSpace(mediaKey),
		hmacSecret: []byte(strings.TrimSpace(hmacSecret)),
	}
}

// Resolve maps the presented credential headers to a mode. A media key wins
// over a self id if a client sends both.
func Resolve(r *http.Request) Identity {
	if key := strings.TrimSpace(r.Header.Get(HeaderMediaKey)); key != "" {
		return Identity{Mode: ModeMedia, MediaKey: key}
	}
	if actor := strings.TrimSpace(r.Header.Get(HeaderSelfID)); actor != "" {
		return Identity{Mode: ModeStandard, ActorID: actor}
	}
	return Identity{Mode: ModeVisitor}
}

// MediaTag is the fingerprint stored for media-mode uploads: a plain digest
// of the access key, so deletion can re-hash a presented key and compare.
func MediaTag(key string) string {
	sum := sha256.Sum256([]byte(key))
	return hex.EncodeToString(sum[:])
}

// StandardTag is the signature stored for standard-mode uploads: the actor id
// run through a keyed MAC so the tag cannot be forged without the server
// secret.
func (a *Authorizer) StandardTag(actorID string) string {
	mac := hmac.New(sha256.New, a.hmacSecret)
	mac.Write([]byte(actorID))
	return hex.EncodeToString(mac.Sum(nil))
}

// AuthorizeUpload gates photo creation for targetPlayerID and returns the
// ownership tag to store with the new record. Standard actors may only write
// to their own profile; that check happens here, before any ownership logic.
func (a *Authorizer) AuthorizeUpload(id Identity, targetPlayerID string) (tag string, err error) {
	switch id.Mode {
	case ModeMedia:
		if a.mediaKey == "" {
			return "", ErrNotConfigured
		}
		if !hmac.Equal([]byte(id.MediaKey), []byte(a.mediaKey)) {
			return "", ErrPermissionDenied
		}
		return MediaTag(id.MediaKey), nil
	case ModeStandard:
		if len(a.hmacSecret) == 0 {
			return "", ErrNotConfigured
		}
		if id.ActorID != targetPlayerID {
			return "", ErrPermissionDenied
		}
		return a.StandardTag(id.ActorID), nil
	default:
		return "", ErrPermissionDenied
	}
}

// AuthorizeDelete recomputes the expected tag for the requesting actor the
// same way it was derived at creation and compares against the stored tag.
// A mismatch is a permission failure, not a not-found: the record's existence
// is not hidden, only its mutability.
func (a *Authorizer) AuthorizeDelete(id Identity, storedTag string) error {
	var expected string
	switch id.Mode {
	case ModeMedia:
		expected = MediaTag(id.MediaKey)
	case ModeStandard:
		if len(a.hmacSecret) == 0 {
			return ErrNotConfigured
		}
		expected = a.StandardTag(id.ActorID)
	default:
		return ErrPermissionDenied
	}
	if !hmac.Equal([]byte(expected), []byte(storedTag)) {
		return ErrPermissionDenied
	}
	return nil
}
