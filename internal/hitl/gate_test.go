package hitl

import (
	"context"
	"fmt"
	"io"
	"strings"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jonathan/agency-automator/internal/bus"
	"github.com/jonathan/agency-automator/internal/store"
)

func newTestGate(t *testing.T) (*Gate, *store.MemoryStore, *bus.Bus) {
	t.Helper()
	st := store.NewMemoryStore()
	b := bus.New(log.New(io.Discard))
	return NewGate(st, b, log.New(io.Discard)), st, b
}

func TestParseMode(t *testing.T) {
	for _, tc := range []struct {
		in   string
		want Mode
	}{
		{"auto", ModeAuto},
		{"approve", ModeApprove},
		{"manual", ModeManual},
	} {
		got, err := ParseMode(tc.in)
		require.NoError(t, err)
		assert.Equal(t, tc.want, got)
		assert.Equal(t, tc.in, got.String())
	}

	_, err := ParseMode("yolo")
	assert.Error(t, err)
}

func TestEvaluateAutoMode(t *testing.T) {
	gate, st, _ := newTestGate(t)
	ctx := context.Background()

	require.NoError(t, st.SetActionMode(ctx, &store.ActionModeConfig{
		AgentSlug: "elena", ActionName: "send_email", Mode: "auto",
	}))

	decision, err := gate.Evaluate(ctx, "elena", "send_email", map[string]any{"to": "x"}, nil)
	require.NoError(t, err)
	assert.True(t, decision.Proceed)
	assert.Nil(t, decision.ApprovalID)

	// Auto mode creates no record.
	pending, err := st.ListApprovals(ctx, store.ApprovalStatusPending, 0)
	require.NoError(t, err)
	assert.Empty(t, pending)
}

func TestEvaluateManualMode(t *testing.T) {
	gate, st, _ := newTestGate(t)
	ctx := context.Background()

	require.NoError(t, st.SetActionMode(ctx, &store.ActionModeConfig{
		AgentSlug: "elena", ActionName: "make_api_call", Mode: "manual",
	}))

	decision, err := gate.Evaluate(ctx, "elena", "make_api_call", nil, nil)
	require.NoError(t, err)
	assert.False(t, decision.Proceed)
	assert.Equal(t, ReasonManualOnly, decision.Reason)
	assert.Nil(t, decision.ApprovalID)
}

func TestEvaluateDefaultsToApprove(t *testing.T) {
	gate, st, b := newTestGate(t)
	ctx := context.Background()

	// No ActionModeConfig row exists for this pair.
	decision, err := gate.Evaluate(ctx, "elena", "send_email", map[string]any{"subject": "hi"}, nil)
	require.NoError(t, err)
	assert.False(t, decision.Proceed)
	assert.Equal(t, ReasonAwaitingApproval, decision.Reason)
	require.NotNil(t, decision.ApprovalID)

	req, err := st.GetApproval(ctx, *decision.ApprovalID)
	require.NoError(t, err)
	assert.Equal(t, store.ApprovalStatusPending, req.Status)
	assert.Equal(t, "hi", req.Payload["subject"])
	assert.Equal(t, 24*time.Hour, req.ExpiresAt.Sub(req.CreatedAt))

	b.Wait()
	history := b.History(0)
	require.Len(t, history, 1)
	assert.Equal(t, "approval.requested", history[0].Name)
	assert.Equal(t, req.ID.String(), history[0].Data["approval_id"])
}

func TestDecideApprove(t *testing.T) {
	gate, st, b := newTestGate(t)
	ctx := context.Background()

	decision, err := gate.Evaluate(ctx, "elena", "send_email", map[string]any{"x": 0}, nil)
	require.NoError(t, err)

	req, err := gate.Decide(ctx, *decision.ApprovalID, true, map[string]any{"x": 1}, "", "ops@agency")
	require.NoError(t, err)
	assert.Equal(t, store.ApprovalStatusApproved, req.Status)
	assert.Equal(t, "ops@agency", req.DecidedBy)
	require.NotNil(t, req.DecidedAt)
	assert.Equal(t, map[string]any{"x": 1}, req.ModifiedPayload)

	b.Wait()
	events := b.History(0)
	assert.Equal(t, "approval.decided", events[len(events)-1].Name)

	// Second decision is rejected without mutating state.
	_, err = gate.Decide(ctx, *decision.ApprovalID, false, nil, "changed my mind", "ops@agency")
	assert.ErrorIs(t, err, ErrAlreadyDecided)

	stored, err := st.GetApproval(ctx, *decision.ApprovalID)
	require.NoError(t, err)
	assert.Equal(t, store.ApprovalStatusApproved, stored.Status)
	assert.Empty(t, stored.RejectionReason)
}

func TestDecideReject(t *testing.T) {
	gate, st, _ := newTestGate(t)
	ctx := context.Background()

	decision, err := gate.Evaluate(ctx, "sofia", "post_tweet", nil, nil)
	require.NoError(t, err)

	req, err := gate.Decide(ctx, *decision.ApprovalID, false, nil, "off brand", "ops@agency")
	require.NoError(t, err)
	assert.Equal(t, store.ApprovalStatusRejected, req.Status)
	assert.Equal(t, "off brand", req.RejectionReason)

	stored, err := st.GetApproval(ctx, *decision.ApprovalID)
	require.NoError(t, err)
	assert.Equal(t, store.ApprovalStatusRejected, stored.Status)
}

func TestDecideUnknownRequest(t *testing.T) {
	gate, _, _ := newTestGate(t)
	_, err := gate.Decide(context.Background(), uuid.New(), true, nil, "", "ops@agency")
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestSummarizeTruncatesOnRuneBoundary(t *testing.T) {
	// A long multi-byte payload must not be cut mid-rune. The leading
	// ASCII byte shifts every two-byte rune onto an odd offset so the
	// limit is guaranteed to land inside one.
	payload := map[string]any{
		"mensaje": "x" + strings.Repeat("ñ", payloadSummaryLimit),
	}
	got := summarize(payload)
	assert.LessOrEqual(t, len(got), payloadSummaryLimit)
	assert.True(t, utf8.ValidString(got))

	// Short payloads pass through untouched.
	short := map[string]any{"to": "x"}
	assert.Equal(t, fmt.Sprintf("%v", short), summarize(short))
}
