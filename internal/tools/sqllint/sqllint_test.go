package sqllint

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLintInlineQueries(t *testing.T) {
	violations, err := Lint(filepath.Join("..", "..", "sqlinline"))
	require.NoError(t, err)
	assert.Empty(t, violations)
}

func TestLintReportsBadMarkers(t *testing.T) {
	violations, err := Lint(filepath.Join("testdata", "bad", "queries.go"))
	require.NoError(t, err)
	require.Len(t, violations, 2)

	assert.Equal(t, "QNoMarker", violations[0].Name)
	assert.Contains(t, violations[0].Message, "missing or invalid")
	assert.Equal(t, "QReused", violations[1].Name)
	assert.Equal(t, "marker already used by QGood", violations[1].Message)
}

func TestLintSkipsTestdataWhenWalking(t *testing.T) {
	violations, err := Lint(".")
	require.NoError(t, err)
	assert.Empty(t, violations)
}

func TestLintMissingTarget(t *testing.T) {
	_, err := Lint("does-not-exist")
	assert.Error(t, err)
}
