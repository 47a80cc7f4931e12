package conversation

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tmc/langchaingo/llms"
)

func TestAppendOnlyLog(t *testing.T) {
	t.Parallel()
	var seen []Message
	s := New(WithObserver(func(m Message) { seen = append(seen, m) }))

	_, err := s.Append(RoleUser, "user", "my invoice is wrong")
	require.NoError(t, err)
	_, err = s.Append(RoleRoutingAuthority, "supervisor", "resolve invoice dispute")
	require.NoError(t, err)

	first := s.Snapshot()
	first[0].Content = "tampered"

	_, err = s.Append(RoleNodeOutput, "Billing", "refund issued")
	require.NoError(t, err)

	snap := s.Snapshot()
	require.Len(t, snap, 3)
	assert.Equal(t, "my invoice is wrong", snap[0].Content, "snapshots must not alias the log")
	assert.Equal(t, snap, seen, "observer sees every append in order")

	last, ok := s.Last()
	require.True(t, ok)
	assert.Equal(t, "Billing", last.Name)
}

func TestAppendRejectsBadInput(t *testing.T) {
	t.Parallel()
	s := New()

	_, err := s.Append(RoleNodeOutput, "Billing", "too early")
	require.ErrorIs(t, err, ErrNotUserFirst)

	_, err = s.Append(Role("system"), "x", "y")
	require.ErrorIs(t, err, ErrInvalidRole)

	require.Equal(t, 0, s.Len())
	require.ErrorIs(t, s.Validate(), ErrNoMessages)
}

func TestDumpAndLoad(t *testing.T) {
	t.Parallel()
	s := New()
	_, err := s.Append(RoleUser, "user", "hello")
	require.NoError(t, err)
	_, err = s.AppendMessage(Message{Role: RoleNodeOutput, Name: "Greeter", Content: "boom", Failure: true})
	require.NoError(t, err)

	data, err := s.Dump()
	require.NoError(t, err)

	loaded, err := Load(data)
	require.NoError(t, err)
	require.Equal(t, s.Snapshot(), loaded.Snapshot())

	_, err = Load([]byte(`[]`))
	require.ErrorIs(t, err, ErrNoMessages)
}

func TestToLLM(t *testing.T) {
	t.Parallel()
	msgs := []Message{
		{Role: RoleUser, Name: "user", Content: "hi"},
		{Role: RoleRoutingAuthority, Name: "supervisor", Content: "greet them"},
		{Role: RoleNodeOutput, Name: "Greeter", Content: "hello!"},
	}

	out := ToLLM(msgs)
	require.Len(t, out, 3)
	assert.Equal(t, llms.ChatMessageTypeHuman, out[0].Role)
	assert.Equal(t, llms.TextContent{Text: "hi"}, out[0].Parts[0])
	assert.Equal(t, llms.ChatMessageTypeAI, out[1].Role)
	assert.Equal(t, llms.TextContent{Text: "[supervisor] greet them"}, out[1].Parts[0])
	assert.Equal(t, llms.TextContent{Text: "[Greeter] hello!"}, out[2].Parts[0])
}
