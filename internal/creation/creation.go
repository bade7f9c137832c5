package creation

import (
	"crypto/md5"
	"encoding/hex"
	"time"

	"github.com/google/uuid"

	"moyun-danqing/internal/style"
)

// Creation is one successful generation. It is never mutated after the
// pipeline hands it out.
type Creation struct {
	ID          string
	Poem        string
	Style       style.Style
	Image       []byte
	Fingerprint string
	CreatedAt   time.Time
	Prompt      string
	Keywords    []string
}

func newCreation(poem string, st style.Style, image []byte, at time.Time) *Creation {
	return &Creation{
		ID:          uuid.NewString(),
		Poem:        poem,
		Style:       st,
		Image:       image,
		Fingerprint: Fingerprint(image),
		CreatedAt:   at,
	}
}

// Fingerprint is the hex MD5 of the raw image bytes.
func Fingerprint(image []byte) string {
	sum := md5.Sum(image)
	return hex.EncodeToString(sum[:])
}

// SameWork reports whether two creations match on poem, style and fingerprint.
func SameWork(a, b *Creation) bool {
	if a == nil || b == nil {
		return false
	}
	return a.Poem == b.Poem && a.Style == b.Style && a.Fingerprint == b.Fingerprint
}
