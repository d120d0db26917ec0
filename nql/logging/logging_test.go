package logging

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew_ValidLevel(t *testing.T) {
	log, err := New("debug", false)
	require.NoError(t, err)
	require.NotNil(t, log)
}

func TestNew_InvalidLevelFallsBackToInfo(t *testing.T) {
	log, err := New("not-a-level", false)
	require.NoError(t, err)
	require.NotNil(t, log)
}

func TestNew_DevEncoding(t *testing.T) {
	log, err := New("info", true)
	require.NoError(t, err)
	require.NotNil(t, log)
}

func TestNop_NeverPanics(t *testing.T) {
	log := Nop()
	require.NotNil(t, log)
	assert.NotPanics(t, func() {
		log.Infow("discarded", "k", "v")
	})
}
