package logging

import (
	"bytes"
	"testing"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInitLevelPrecedence(t *testing.T) {
	Init(false, false)
	assert.Equal(t, zerolog.InfoLevel, zerolog.GlobalLevel())

	Init(false, true)
	assert.Equal(t, zerolog.DebugLevel, zerolog.GlobalLevel())

	Init(true, true)
	assert.Equal(t, zerolog.Disabled, zerolog.GlobalLevel(), "quiet must take precedence over debug")

	Init(false, false) // restore for later tests in this package
}

func TestNamedAttachesComponentField(t *testing.T) {
	Init(false, false)
	var buf bytes.Buffer
	log.Logger = zerolog.New(&buf)

	Named("scaling_planner").Info().Msg("tick")

	require.Contains(t, buf.String(), `"component":"scaling_planner"`)
	require.Contains(t, buf.String(), `"message":"tick"`)
}
