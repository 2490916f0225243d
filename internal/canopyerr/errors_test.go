package canopyerr

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestErrorIsMatchesByCode(t *testing.T) {
	a := StaleGeneration("repo1", 1, 2)
	b := &Error{Code: CodeStaleGeneration}

	assert.True(t, errors.Is(a, b))
	assert.False(t, errors.Is(a, &Error{Code: CodeRepoNotFound}))
}

func TestToEnvelope(t *testing.T) {
	env := ToEnvelope(HandleNotFound("habc123"))
	assert.Equal(t, CodeHandleNotFound, env.Code)
	assert.Contains(t, env.Message, "habc123")
}

func TestToEnvelopePlainError(t *testing.T) {
	env := ToEnvelope(errors.New("boom"))
	assert.Equal(t, CodeInternalError, env.Code)
	assert.Equal(t, "boom", env.Message)
}

func TestHTTPStatus(t *testing.T) {
	assert.Equal(t, 404, HTTPStatus(CodeRepoNotFound))
	assert.Equal(t, 409, HTTPStatus(CodeStaleGeneration))
	assert.Equal(t, 500, HTTPStatus(CodeInternalError))
}

func TestIsRetryable(t *testing.T) {
	assert.True(t, IsRetryable(New(CodeTimeout, "timed out")))
	assert.False(t, IsRetryable(New(CodeStaleGeneration, "stale")))
	assert.False(t, IsRetryable(errors.New("plain")))
}

func TestCategoryOf(t *testing.T) {
	assert.Equal(t, CategoryHandle, CategoryOf(New(CodeHandleNotFound, "x")))
	assert.Equal(t, CategoryRepo, CategoryOf(New(CodeRepoNotFound, "x")))
	assert.Equal(t, CategoryConfig, CategoryOf(New(CodeSchemaVersionMismatch, "x")))
	assert.Equal(t, CategoryUnknown, CategoryOf(errors.New("plain")))
}
