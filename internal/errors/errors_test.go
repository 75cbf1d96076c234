package errors_test

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	seyerrs "github.com/jdholdren/diggfeed/internal/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEConstructor(t *testing.T) {
	got := seyerrs.E(
		"something went wrong",
		seyerrs.KindUpstream,
		http.StatusBadGateway,
	)
	want := &seyerrs.Error{
		Err:    errors.New("something went wrong"),
		Kind:   seyerrs.KindUpstream,
		Status: http.StatusBadGateway,
	}

	assert.Equal(t, want, got)
}

func TestEDefaults(t *testing.T) {
	got := seyerrs.E(errors.New("boom"))

	assert.Equal(t, http.StatusInternalServerError, got.Status)
	assert.Equal(t, "Worker error: boom", got.Body())
}

func TestBody(t *testing.T) {
	assert.Equal(t, "Not found", seyerrs.E(seyerrs.KindNotFound, http.StatusNotFound).Body())
	assert.Equal(t, `Upstream error: {"message":"x"}`, seyerrs.E(seyerrs.KindUpstream, `{"message":"x"}`).Body())
}

func TestUnwrap(t *testing.T) {
	sentinel := errors.New("sentinel")
	err := fmt.Errorf("wrapped: %w", seyerrs.E(sentinel, http.StatusBadGateway))

	var seyerr *seyerrs.Error
	require.ErrorAs(t, err, &seyerr)
	assert.Equal(t, http.StatusBadGateway, seyerr.Status)
	assert.ErrorIs(t, err, sentinel)
}
