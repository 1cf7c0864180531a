package validation_test

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"vitrine/internal/validation"
)

type sample struct {
	Name  string `json:"name" validate:"required,max=5"`
	Kind  string `json:"kind" validate:"omitempty,oneof=a b"`
	Count int    `json:"count" validate:"gte=0"`
}

func TestStruct(t *testing.T) {
	require.NoError(t, validation.Struct(sample{Name: "ok", Kind: "a"}))

	err := validation.Struct(sample{Name: "", Kind: "c", Count: -1})
	require.Error(t, err)

	var verr *validation.Error
	require.True(t, errors.As(err, &verr))
	require.Len(t, verr.Fields, 3)
	assert.Equal(t, "name", verr.Fields[0].Field)
	assert.Equal(t, "required", verr.Fields[0].Tag)
	assert.Equal(t, "kind", verr.Fields[1].Field)
	assert.Contains(t, err.Error(), "name is required")
	assert.Contains(t, err.Error(), "kind must be one of [a b]")
}
