package receipt

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// IdentityProvider creates the identity used for new installs.
// The generated scheme is a placeholder until a real login exists.
type IdentityProvider interface {
	NewUser(ctx context.Context) (*User, error)
}

// TimeSource provides the current time
type TimeSource interface {
	Now() time.Time
}

// RandomSource provides random identifier material
type RandomSource interface {
	Random() string
}

// defaultTimeSource provides the current time
type defaultTimeSource struct{}

func (t *defaultTimeSource) Now() time.Time {
	return time.Now()
}

// uuidRandomSource returns the first 9 hex characters of a random UUID
type uuidRandomSource struct{}

func (r *uuidRandomSource) Random() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")[:9]
}

// GeneratedIdentity generates ids of the form user_<unix-ms>_<random>
type GeneratedIdentity struct {
	timeSource TimeSource
	random     RandomSource
}

// NewGeneratedIdentity creates a new GeneratedIdentity
func NewGeneratedIdentity() *GeneratedIdentity {
	return &GeneratedIdentity{
		timeSource: &defaultTimeSource{},
		random:     &uuidRandomSource{},
	}
}

// NewGeneratedIdentityWithDeps creates a new GeneratedIdentity with custom dependencies for testing
func NewGeneratedIdentityWithDeps(timeSrc TimeSource, random RandomSource) *GeneratedIdentity {
	return &GeneratedIdentity{
		timeSource: timeSrc,
		random:     random,
	}
}

// NewUser returns a user with a freshly generated id
func (g *GeneratedIdentity) NewUser(ctx context.Context) (*User, error) {
	id := fmt.Sprintf("user_%d_%s", g.timeSource.Now().UnixMilli(), g.random.Random())
	return &User{ID: id}, nil
}
