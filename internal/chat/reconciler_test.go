package chat

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/stretchr/testify/assert"

	"vartalap/internal/domain"
)

var viewOpts = cmp.Options{
	cmpopts.EquateEmpty(),
	cmpopts.EquateErrors(),
}

func userMsg(chatID, id, content string) domain.Message {
	return domain.Message{ID: id, ChatID: chatID, Role: domain.RoleUser, Content: content}
}

func TestReconcilerSendLifecycle(t *testing.T) {
	r := NewReconciler()
	r.Select("c1")
	r.SetInput("Hello")
	r.Sent("c1")

	want := View{
		ActiveChat: "c1",
		Stream:     StreamState{ChatID: "c1", Status: StreamLoading},
	}
	if diff := cmp.Diff(want, r.View(), viewOpts); diff != "" {
		t.Fatalf("after Sent (-want +got):\n%s", diff)
	}

	r.ApplySend(Persisting{ChatID: "c1", Text: "Hello"})
	v := r.View()
	assert.True(t, v.Sending)
	assert.False(t, v.Typing)

	msg := userMsg("c1", "m1", "Hello")
	r.ApplySend(Dispatching{ChatID: "c1", Message: msg})
	v = r.View()
	assert.True(t, v.Sending)
	assert.True(t, v.Typing)

	r.ApplySend(SettledOK{ChatID: "c1", Message: msg})
	v = r.View()
	assert.False(t, v.Sending)
	assert.False(t, v.Typing)
	assert.NoError(t, v.Notice)
	assert.Empty(t, v.Input)
}

func TestReconcilerFailedSendRestoresInput(t *testing.T) {
	cause := domain.StoreFailure(domain.ErrStoreRejected)

	tests := []struct {
		name      string
		typed     string
		wantInput string
	}{
		{name: "empty draft", typed: "", wantInput: "Hello "},
		{name: "user typed again", typed: "something else", wantInput: "something else"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := NewReconciler()
			r.Select("c1")
			r.SetInput("Hello ")
			r.Sent("c1")
			r.ApplySend(Persisting{ChatID: "c1", Text: "Hello"})
			if tt.typed != "" {
				r.SetInput(tt.typed)
			}
			r.ApplySend(SettledFailed{ChatID: "c1", Input: "Hello ", Err: cause})

			want := View{
				ActiveChat: "c1",
				Input:      tt.wantInput,
				Stream:     StreamState{ChatID: "c1", Status: StreamLoading},
				Notice:     cause,
			}
			if diff := cmp.Diff(want, r.View(), viewOpts); diff != "" {
				t.Fatalf("(-want +got):\n%s", diff)
			}
		})
	}
}

func TestReconcilerPartialSendKeepsInputCleared(t *testing.T) {
	r := NewReconciler()
	r.Select("c1")
	r.SetInput("Hello")
	r.Sent("c1")
	msg := userMsg("c1", "m1", "Hello")
	r.ApplySend(Dispatching{ChatID: "c1", Message: msg})
	cause := domain.PartialSendFailure(domain.ErrResponderFailed)
	r.ApplySend(SettledPartial{ChatID: "c1", Message: msg, Err: cause})

	v := r.View()
	assert.Empty(t, v.Input)
	assert.False(t, v.Sending)
	assert.True(t, domain.IsPartialSendFailure(v.Notice))

	r.DismissNotice()
	assert.NoError(t, r.View().Notice)
}

func TestReconcilerIgnoresOtherChatStream(t *testing.T) {
	r := NewReconciler()
	r.Select("c1")
	r.Select("c2")
	r.ApplyStream(StreamState{
		ChatID:   "c1",
		Status:   StreamReady,
		Messages: []domain.Message{userMsg("c1", "m1", "late")},
		Seq:      1,
	})

	v := r.View()
	assert.Equal(t, "c2", v.ActiveChat)
	assert.Equal(t, StreamLoading, v.Stream.Status)
	assert.Empty(t, v.Stream.Messages)
	assert.Zero(t, v.ScrollSeq)
}

func TestReconcilerScrollsOnNewSnapshotsOnly(t *testing.T) {
	r := NewReconciler()
	r.Select("c1")
	ready := func(seq uint64, n int) StreamState {
		msgs := make([]domain.Message, n)
		for i := range msgs {
			msgs[i] = userMsg("c1", string(rune('a'+i)), "x")
		}
		return StreamState{ChatID: "c1", Status: StreamReady, Messages: msgs, Seq: seq}
	}

	r.ApplyStream(ready(1, 1))
	assert.Equal(t, uint64(1), r.View().ScrollSeq)

	r.ApplyStream(ready(1, 1))
	assert.Equal(t, uint64(1), r.View().ScrollSeq, "same snapshot must not scroll")

	r.ApplyStream(StreamState{ChatID: "c1", Status: StreamError, Seq: 1, Err: domain.SubscriptionFailure(domain.ErrSubscriptionDropped)})
	assert.Equal(t, uint64(1), r.View().ScrollSeq)

	r.ApplyStream(ready(2, 2))
	v := r.View()
	assert.Equal(t, uint64(2), v.ScrollSeq)
	assert.Len(t, v.Stream.Messages, 2)
}

func TestReconcilerDraftsArePerChat(t *testing.T) {
	r := NewReconciler()
	r.Select("c1")
	r.SetInput("draft one")
	r.Select("c2")
	assert.Empty(t, r.View().Input)
	r.SetInput("draft two")

	r.Select("c1")
	assert.Equal(t, "draft one", r.View().Input)
	r.Select("c2")
	assert.Equal(t, "draft two", r.View().Input)
}

func TestReconcilerSendStateIsPerChat(t *testing.T) {
	r := NewReconciler()
	r.Select("c1")
	r.ApplySend(Dispatching{ChatID: "c1", Message: userMsg("c1", "m1", "Hello")})
	r.Select("c2")

	v := r.View()
	assert.False(t, v.Sending)
	assert.False(t, v.Typing)

	r.ApplySend(SettledFailed{ChatID: "c1", Input: "Hello", Err: domain.ConnectivityFailure(domain.ErrNetwork)})
	assert.Empty(t, r.View().Input)
	assert.NoError(t, r.View().Notice)

	r.Select("c1")
	v = r.View()
	assert.Equal(t, "Hello", v.Input)
	assert.True(t, domain.IsConnectivityFailure(v.Notice))
}

func TestReconcilerViewCopiesMessages(t *testing.T) {
	r := NewReconciler()
	r.Select("c1")
	r.ApplyStream(StreamState{ChatID: "c1", Status: StreamReady, Seq: 1, Messages: []domain.Message{userMsg("c1", "m1", "Hello")}})

	v := r.View()
	v.Stream.Messages[0].Content = "changed"
	assert.Equal(t, "Hello", r.View().Stream.Messages[0].Content)
}

func TestReconcilerDropsStaleSettlement(t *testing.T) {
	r := NewReconciler()
	r.Select("c1")

	r.ApplySend(Persisting{ChatID: "c1", Seq: 1, Text: "first"})
	r.Sent("c1")
	r.ApplySend(Persisting{ChatID: "c1", Seq: 2, Text: "second"})
	r.ApplySend(SettledFailed{ChatID: "c1", Seq: 1, Input: "first", Err: domain.ConnectivityFailure(domain.ErrNetwork)})

	v := r.View()
	assert.True(t, v.Sending)
	assert.Empty(t, v.Input)
	assert.NoError(t, v.Notice)

	r.ApplySend(SettledOK{ChatID: "c1", Seq: 2})
	assert.False(t, r.View().Sending)
}
