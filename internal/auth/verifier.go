package auth

import (
	"context"
	"errors"
	"fmt"
)

// ErrSubjectRevoked is returned when a token verifies but the subject is
// no longer active in the identity store.
var ErrSubjectRevoked = errors.New("auth: subject inactive or unknown")

// Identity is the verified identity attached to a session or request.
type Identity struct {
	SubjectID string
	Role      Role
	Email     string
}

// SubjectDirectory answers whether a subject still exists and is active.
// A valid token alone is not enough; revoked or suspended subjects must
// be rejected even while their tokens are unexpired.
type SubjectDirectory interface {
	SubjectActive(ctx context.Context, subjectID string) (bool, error)
}

// Verifier validates bearer credentials against the signing secret and
// the identity store.
type Verifier struct {
	secret    []byte
	directory SubjectDirectory
}

// NewVerifier constructs a Verifier.
func NewVerifier(secret []byte, directory SubjectDirectory) (*Verifier, error) {
	if len(secret) == 0 {
		return nil, errors.New("auth: empty secret")
	}
	if directory == nil {
		return nil, errors.New("auth: nil subject directory")
	}
	return &Verifier{secret: secret, directory: directory}, nil
}

// Verify parses and validates the credential and re-checks the subject
// against the directory.
func (v *Verifier) Verify(ctx context.Context, credential string) (Identity, error) {
	if v == nil {
		return Identity{}, errors.New("auth: nil verifier")
	}
	claims, err := ParseJWT(credential, v.secret)
	if err != nil {
		return Identity{}, err
	}
	role, ok := NormalizeRole(claims.Role)
	if !ok {
		return Identity{}, errors.New("auth: invalid role")
	}
	active, err := v.directory.SubjectActive(ctx, claims.Subject)
	if err != nil {
		return Identity{}, fmt.Errorf("auth: subject lookup: %w", err)
	}
	if !active {
		return Identity{}, ErrSubjectRevoked
	}
	return Identity{SubjectID: claims.Subject, Role: role, Email: claims.Email}, nil
}
