package release

import (
	"encoding/hex"

	"github.com/google/uuid"
)

// NewSession mints a scan session token: 128 random bits as 32 lowercase
// hex characters.
func NewSession() string {
	id := uuid.New()
	return hex.EncodeToString(id[:])
}
