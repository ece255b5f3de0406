package conflict

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vulntor/fileops/pkg/job"
	"github.com/vulntor/fileops/pkg/wire"
)

type harness struct {
	responses []wire.OverwriteResponse
	prompts   []job.ConflictPrompt
	resumed   int
	cancelled int
	resolver  *Resolver
}

func newHarness() *harness {
	h := &harness{}
	h.resolver = New("job-1", job.KindCopy, Hooks{
		Respond: func(r wire.OverwriteResponse) { h.responses = append(h.responses, r) },
		Prompt:  func(p job.ConflictPrompt) { h.prompts = append(h.prompts, p) },
		Resumed: func() { h.resumed++ },
		Cancel:  func() { h.cancelled++ },
	})
	return h
}

func filePrompt(id, name string) wire.OverwritePrompt {
	return wire.OverwritePrompt{File: name, ItemType: "file", PromptID: id}
}

func TestResolver_SingleItemDecisions(t *testing.T) {
	for _, d := range []job.Decision{job.DecisionOverwriteThis, job.DecisionSkipThis} {
		t.Run(string(d), func(t *testing.T) {
			h := newHarness()

			require.True(t, h.resolver.Offer(filePrompt("p1", "a.txt")))
			assert.Equal(t, StateAwaitingDecision, h.resolver.State())
			require.Len(t, h.prompts, 1)
			assert.Equal(t, "a.txt", h.prompts[0].ItemName)
			assert.Equal(t, job.ItemFile, h.prompts[0].ItemKind)

			require.NoError(t, h.resolver.Resolve("p1", d))
			assert.Equal(t, StateIdle, h.resolver.State())
			assert.Equal(t, []wire.OverwriteResponse{wire.NewOverwriteResponse("p1", string(d), "")}, h.responses)
			assert.Equal(t, 1, h.resumed)

			// A per-item answer is not remembered.
			assert.True(t, h.resolver.Offer(filePrompt("p2", "b.txt")))
			assert.Len(t, h.prompts, 2)
		})
	}
}

func TestResolver_BatchPolicyAppliesToLaterPrompts(t *testing.T) {
	for _, policy := range job.BatchPolicies() {
		t.Run(string(policy), func(t *testing.T) {
			h := newHarness()

			h.resolver.Offer(filePrompt("p1", "a.txt"))
			require.NoError(t, h.resolver.Resolve("p1", policy))
			assert.Equal(t, policy, h.resolver.Policy())

			assert.False(t, h.resolver.Offer(filePrompt("p2", "b.txt")))
			assert.False(t, h.resolver.Offer(wire.OverwritePrompt{File: "dir", ItemType: "folder", PromptID: "p3"}))

			assert.Len(t, h.prompts, 1)
			assert.Equal(t, StateIdle, h.resolver.State())
			require.Len(t, h.responses, 3)
			for _, r := range h.responses {
				assert.Equal(t, string(policy), r.Decision)
			}
			assert.Equal(t, "p3", h.responses[2].PromptID)
		})
	}
}

func TestResolver_FolderOverwriteAsksForContentsRule(t *testing.T) {
	h := newHarness()

	h.resolver.Offer(wire.OverwritePrompt{File: "photos", ItemType: "folder", PromptID: "p1"})
	require.Len(t, h.prompts, 1)
	assert.NotContains(t, h.prompts[0].BatchPolicyCandidates, job.DecisionSkipAll)

	require.NoError(t, h.resolver.Resolve("p1", job.DecisionOverwriteThis))
	assert.Empty(t, h.responses, "engine is answered only after the contents rule")
	require.Len(t, h.prompts, 2)
	second := h.prompts[1]
	assert.Equal(t, "p1/contents", second.PromptID)
	assert.Equal(t, job.StageFolderContents, second.Stage)
	assert.NotContains(t, second.BatchPolicyCandidates, job.DecisionOverwriteThis)

	// The first prompt id is stale now.
	require.NoError(t, h.resolver.Resolve("p1", job.DecisionSkipThis))
	assert.Empty(t, h.responses)

	err := h.resolver.Resolve("p1/contents", job.DecisionOverwriteThis)
	require.ErrorIs(t, err, ErrDecisionNotOffered)
	assert.Equal(t, StateAwaitingDecision, h.resolver.State())

	require.NoError(t, h.resolver.Resolve("p1/contents", job.DecisionOverwriteIfSourceNewer))
	require.Len(t, h.responses, 1)
	assert.Equal(t, wire.OverwriteResponse{
		Type:           wire.TypeOverwriteResponse,
		Decision:       "overwrite-this",
		PromptID:       "p1",
		ContentsPolicy: "overwrite-if-source-newer",
	}, h.responses[0])
	assert.Equal(t, 1, h.resumed)
	assert.Equal(t, job.DecisionOverwriteIfSourceNewer, h.resolver.Policy())
}

func TestResolver_FolderSkipSkipsSubtree(t *testing.T) {
	h := newHarness()

	h.resolver.Offer(wire.OverwritePrompt{File: "photos", ItemType: "directory", PromptID: "p1"})
	require.NoError(t, h.resolver.Resolve("p1", job.DecisionSkipThis))

	assert.Equal(t, []wire.OverwriteResponse{wire.NewOverwriteResponse("p1", "skip-this", "")}, h.responses)
	assert.Len(t, h.prompts, 1)
	assert.Empty(t, h.resolver.Policy())
}

func TestResolver_CancelOperation(t *testing.T) {
	h := newHarness()

	h.resolver.Offer(filePrompt("p1", "a.txt"))
	require.NoError(t, h.resolver.Resolve("p1", job.DecisionCancelOperation))

	assert.Equal(t, 1, h.cancelled)
	assert.Empty(t, h.responses)
	assert.Zero(t, h.resumed)
	assert.Equal(t, StateIdle, h.resolver.State())
}

func TestResolver_IgnoresDecisionsWithoutMatchingPrompt(t *testing.T) {
	h := newHarness()

	require.NoError(t, h.resolver.Resolve("p1", job.DecisionOverwriteThis))
	assert.Empty(t, h.responses)

	h.resolver.Offer(filePrompt("p2", "a.txt"))
	require.NoError(t, h.resolver.Resolve("p1", job.DecisionOverwriteThis))
	assert.Empty(t, h.responses)
	assert.Equal(t, StateAwaitingDecision, h.resolver.State())
}

func TestResolver_NewPromptSupersedesOutstanding(t *testing.T) {
	h := newHarness()

	h.resolver.Offer(filePrompt("p1", "a.txt"))
	h.resolver.Offer(filePrompt("p2", "b.txt"))

	pending, ok := h.resolver.Pending()
	require.True(t, ok)
	assert.Equal(t, "p2", pending.PromptID)

	require.NoError(t, h.resolver.Resolve("p1", job.DecisionSkipThis))
	assert.Empty(t, h.responses)
	require.NoError(t, h.resolver.Resolve("p2", job.DecisionSkipThis))
	assert.Len(t, h.responses, 1)
}

func TestResolver_AbandonDropsPrompt(t *testing.T) {
	h := newHarness()

	h.resolver.Offer(filePrompt("p1", "a.txt"))
	h.resolver.Abandon()

	_, ok := h.resolver.Pending()
	assert.False(t, ok)
	require.NoError(t, h.resolver.Resolve("p1", job.DecisionSkipThis))
	assert.Empty(t, h.responses)
}
