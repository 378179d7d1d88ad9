package tracing

import (
	"bytes"
	"context"
	"log/slog"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSpanTree(t *testing.T) {
	ctx, root := StartSpan(context.Background(), "evaluate", "run-1")
	assert.Same(t, root, SpanFromContext(ctx))

	childCtx, load := StartChildSpan(ctx, "load-truth")
	load.SetAttr("instances", 4)
	_, parse := StartChildSpan(childCtx, "parse")
	parse.End()
	load.End()
	_, score := StartChildSpan(ctx, "score")
	score.End()
	root.End()

	require.Len(t, root.Children(), 2)
	assert.Equal(t, "run-1", parse.TraceID)
	assert.Equal(t, []*Span{parse}, load.Children())

	var buf bytes.Buffer
	root.Log(slog.New(slog.NewTextHandler(&buf, nil)))
	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 4)
	assert.Contains(t, lines[0], "span=evaluate")
	assert.Contains(t, lines[1], "span=load-truth")
	assert.Contains(t, lines[1], "instances=4")
	assert.Contains(t, lines[2], "depth=2")
	assert.Contains(t, lines[3], "span=score")
}

func TestChildWithoutParent(t *testing.T) {
	_, span := StartChildSpan(context.Background(), "orphan")
	assert.Empty(t, span.TraceID)
	assert.Nil(t, SpanFromContext(context.Background()))
}
