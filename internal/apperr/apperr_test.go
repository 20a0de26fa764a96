package apperr

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestKindsMatchSentinels(t *testing.T) {
	base := errors.New("boom")

	tests := []struct {
		err      error
		sentinel error
		kind     Kind
	}{
		{Auth("login", base), ErrAuth, KindAuth},
		{Transient("follows", base), ErrTransient, KindTransient},
		{DataShape("posts", base), ErrDataShape, KindDataShape},
		{Model("generate", base), ErrModel, KindModel},
	}

	for _, tt := range tests {
		wrapped := fmt.Errorf("outer: %w", tt.err)
		assert.ErrorIs(t, wrapped, tt.sentinel)
		assert.ErrorIs(t, wrapped, base)
		assert.Equal(t, tt.kind, KindOf(wrapped))
	}
}

func TestKindsDoNotCrossMatch(t *testing.T) {
	err := Auth("login", nil)
	assert.NotErrorIs(t, err, ErrTransient)
	assert.NotErrorIs(t, err, ErrModel)
	assert.Equal(t, "login: auth", err.Error())
}

func TestFromStatus(t *testing.T) {
	assert.Equal(t, KindAuth, KindOf(FromStatus("op", 401, nil)))
	assert.Equal(t, KindAuth, KindOf(FromStatus("op", 403, nil)))
	assert.Equal(t, KindTransient, KindOf(FromStatus("op", 429, nil)))
	assert.Equal(t, KindTransient, KindOf(FromStatus("op", 503, nil)))
	assert.Equal(t, KindDataShape, KindOf(FromStatus("op", 400, nil)))
}

func TestKindOfUnclassified(t *testing.T) {
	assert.Equal(t, Kind(""), KindOf(errors.New("plain")))
	assert.Equal(t, Kind(""), KindOf(nil))
}
