package gateerr

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCharacterCapIsConflict(t *testing.T) {
	assert.ErrorIs(t, ErrCharacterCap, ErrConflict)
	assert.NotErrorIs(t, ErrConflict, ErrCharacterCap)
}

func TestStoreKeepsCause(t *testing.T) {
	cause := errors.New("connection refused")
	err := Store("querying character", cause)

	assert.ErrorIs(t, err, ErrStoreUnavailable)
	assert.ErrorIs(t, err, cause)
	assert.Contains(t, err.Error(), "querying character")
}

func TestProtocolf(t *testing.T) {
	err := Protocolf("unknown chat type %q", "Shout")
	assert.ErrorIs(t, err, ErrProtocol)
	assert.Contains(t, err.Error(), `"Shout"`)
}
