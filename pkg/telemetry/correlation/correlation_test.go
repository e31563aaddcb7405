package correlation

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestEnsureCorrelationIDKeepsExisting(t *testing.T) {
	ctx := ContextWithCorrelationID(context.Background(), "cid-1")
	ctx, cid := EnsureCorrelationID(ctx)
	assert.Equal(t, "cid-1", cid)
	assert.Equal(t, "cid-1", ExtractCorrelationID(ctx))
}

func TestEnsureCorrelationIDGenerates(t *testing.T) {
	ctx, cid := EnsureCorrelationID(context.Background())
	assert.NotEmpty(t, cid)
	assert.Equal(t, cid, ExtractCorrelationID(ctx))
}

func TestDetachCarriesCorrelation(t *testing.T) {
	parent, cancel := context.WithCancel(ContextWithCorrelationID(context.Background(), "cid-2"))
	cancel()

	detached := Detach(parent)
	assert.NoError(t, detached.Err())
	assert.Equal(t, "cid-2", ExtractCorrelationID(detached))
}

func TestSanitize(t *testing.T) {
	assert.Equal(t, "req-1", Sanitize("  req-1 "))
	assert.Empty(t, Sanitize(""))
	assert.Empty(t, Sanitize("bad id"))
	assert.Empty(t, Sanitize("line\nbreak"))
	assert.Empty(t, Sanitize(strings.Repeat("a", 129)))
}
