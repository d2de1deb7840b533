package ocr

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExecRunnerCapturesOutput(t *testing.T) {
	out, errb, err := execRunner{}.Run(context.Background(), "sh", "-c", "echo stdout-line; echo stderr-line >&2")
	require.NoError(t, err)
	assert.Equal(t, "stdout-line", strings.TrimSpace(string(out)))
	assert.Equal(t, "stderr-line", strings.TrimSpace(string(errb)))
}

func TestExecRunnerReportsFailure(t *testing.T) {
	_, errb, err := execRunner{}.Run(context.Background(), "sh", "-c", "echo boom >&2; exit 3")
	require.Error(t, err)
	assert.Equal(t, "boom", strings.TrimSpace(string(errb)))
}

func TestTruncate(t *testing.T) {
	assert.Equal(t, "abc", truncate("abc", 10))
	assert.Equal(t, "ab...(truncated)", truncate("abcdef", 2))
}
