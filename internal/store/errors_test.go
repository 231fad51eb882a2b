package store

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/pdcpos/posoffline/internal/common"
)

func TestKindOf_Sentinels(t *testing.T) {
	assert.Equal(t, common.ErrAborted, KindOf(common.ErrAborted))
	assert.Equal(t, common.ErrAborted, KindOf(fmt.Errorf("enqueue: %w", common.ErrAborted)))
	assert.Equal(t, common.ErrQuotaExceeded, KindOf(common.ErrQuotaExceeded))
	assert.Equal(t, common.ErrConstraintViolated, KindOf(common.ErrConstraintViolated))
	assert.Equal(t, common.ErrNotFound, KindOf(common.ErrNotFound))
	assert.Equal(t, common.ErrInvalidState, KindOf(common.ErrInvalidState))
	assert.Nil(t, KindOf(nil))
	assert.Nil(t, KindOf(errors.New("something else")))
}

func TestIsTransient(t *testing.T) {
	assert.True(t, IsTransient(common.ErrAborted))
	assert.True(t, IsTransient(common.ErrQuotaExceeded))
	assert.False(t, IsTransient(common.ErrConstraintViolated))
	assert.False(t, IsTransient(common.ErrNotFound))
	assert.False(t, IsTransient(errors.New("unclassified")))
}

func TestIsPermanent(t *testing.T) {
	assert.True(t, IsPermanent(common.ErrConstraintViolated))
	assert.True(t, IsPermanent(common.ErrNotFound))
	assert.True(t, IsPermanent(common.ErrInvalidState))
	assert.False(t, IsPermanent(common.ErrAborted))
	assert.False(t, IsPermanent(errors.New("unclassified")))
}
