package agent

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubAgent struct {
	slug string
}

func (s *stubAgent) Slug() string { return s.slug }

func (s *stubAgent) Execute(context.Context, string, string, map[string]any) (*Result, error) {
	return &Result{Content: "ok"}, nil
}

func TestRegistryGet(t *testing.T) {
	r := NewRegistry()
	r.Register(&stubAgent{slug: "elena"})

	a, err := r.Get("elena")
	require.NoError(t, err)
	assert.Equal(t, "elena", a.Slug())
}

func TestRegistryGetUnknown(t *testing.T) {
	r := NewRegistry()

	_, err := r.Get("ghost")
	require.Error(t, err)

	var notReg *NotRegisteredError
	require.ErrorAs(t, err, &notReg)
	assert.Equal(t, "ghost", notReg.Slug)
	assert.Equal(t, "agent not registered: ghost", err.Error())
}

func TestRegistryReplace(t *testing.T) {
	r := NewRegistry()
	first := &stubAgent{slug: "sofia"}
	second := &stubAgent{slug: "sofia"}
	r.Register(first)
	r.Register(second)

	a, err := r.Get("sofia")
	require.NoError(t, err)
	assert.Same(t, second, a)
	assert.Equal(t, []string{"sofia"}, r.Slugs())
}
