package native

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMapIsTotal(t *testing.T) {
	for s := StatusSuccess; s <= StatusOutputNotFoundError; s++ {
		c := Map(s)
		if s == StatusSuccess {
			assert.Equal(t, NoError, c)
			continue
		}
		assert.NotEqual(t, NoError, c, s)
		assert.Equal(t, c.String(), s.String())
	}
	assert.Equal(t, UnknownError, Map(Status(999)))
	assert.Equal(t, UnknownError, Map(Status(-1)))
	assert.Equal(t, "status(999)", Status(999).String())
}

func TestMapIsInjective(t *testing.T) {
	seen := make(map[Category]Status)
	for s := StatusSuccess; s <= StatusOutputNotFoundError; s++ {
		c := Map(s)
		prev, dup := seen[c]
		assert.False(t, dup, "%s and %s share %s", prev, s, c)
		seen[c] = s
	}
}

func TestErrorCarriesMessage(t *testing.T) {
	err := NewError(StatusVariableNotFound, "menoh variable not found error: data")
	assert.Equal(t, "menoh variable not found error: data", err.Error())
	assert.Equal(t, VariableNotFound, err.Category)

	wrapped := fmt.Errorf("build: %w", err)
	assert.True(t, errors.Is(wrapped, VariableNotFound))
	assert.False(t, errors.Is(wrapped, DimensionMismatch))
	assert.Equal(t, VariableNotFound, CategoryOf(wrapped))

	var ne *Error
	require.True(t, errors.As(wrapped, &ne))
	assert.Equal(t, StatusVariableNotFound, ne.Status)
}

func TestCheck(t *testing.T) {
	assert.NoError(t, Check(StatusSuccess, ""))

	err := Check(StatusBackendError, "menoh backend error: out of memory")
	require.Error(t, err)
	assert.True(t, errors.Is(err, BackendError))
	assert.Equal(t, "menoh backend error: out of memory", err.Error())

	assert.True(t, errors.Is(Check(Status(77), "future"), UnknownError))
}

func TestCategoryOf(t *testing.T) {
	assert.Equal(t, NoError, CategoryOf(nil))
	assert.Equal(t, UnknownError, CategoryOf(errors.New("plain")))
	assert.Equal(t, "category(99)", Category(99).String())
}

func TestDeclarationAliases(t *testing.T) {
	err := Errorf(StatusSameNamedVariableAlreadyExist, "menoh same named variable already exist error: %s", "x")
	assert.True(t, errors.Is(err, DuplicateVariable))
	err = Errorf(StatusUnsupportedInputDims, "menoh unsupported input dims error: %s", "x")
	assert.True(t, errors.Is(err, InvalidDimension))
}
