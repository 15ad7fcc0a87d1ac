package convo

import (
	"sync"
	"testing"
)

func TestNewSeedsSingleSystemMessage(t *testing.T) {
	c := New("You are a helpful assistant.")
	msgs := c.Messages()
	if len(msgs) != 1 {
		t.Fatalf("len = %d, want 1", len(msgs))
	}
	if msgs[0].Role != RoleSystem {
		t.Fatalf("Role = %q, want %q", msgs[0].Role, RoleSystem)
	}
	if msgs[0].Content != "You are a helpful assistant." {
		t.Fatalf("Content = %q", msgs[0].Content)
	}
}

func TestAppendPreservesOrderAndPrefix(t *testing.T) {
	c := New("sys")
	c.Append(User("hi"), Assistant("hello"))
	before := c.Messages()
	c.Append(User("how are you"), Assistant("fine"))
	after := c.Messages()

	if len(after) != 5 {
		t.Fatalf("len = %d, want 5", len(after))
	}
	for i := range before {
		if after[i] != before[i] {
			t.Fatalf("message %d changed: %+v -> %+v", i, before[i], after[i])
		}
	}
	want := []Role{RoleSystem, RoleUser, RoleAssistant, RoleUser, RoleAssistant}
	for i, role := range want {
		if after[i].Role != role {
			t.Fatalf("message %d role = %q, want %q", i, after[i].Role, role)
		}
	}
}

func TestMessagesReturnsCopy(t *testing.T) {
	c := New("sys")
	msgs := c.Messages()
	msgs[0].Content = "tampered"
	if got := c.Messages()[0].Content; got != "sys" {
		t.Fatalf("Content = %q, want %q", got, "sys")
	}
}

func TestWithPendingDoesNotCommit(t *testing.T) {
	c := New("sys")
	snap := c.WithPending(User("question"))
	if len(snap) != 2 || snap[1].Content != "question" {
		t.Fatalf("snapshot = %+v, want system + pending user", snap)
	}
	if c.Len() != 1 {
		t.Fatalf("Len = %d, want 1", c.Len())
	}
}

func TestConcurrentAppendKeepsPairsTogether(t *testing.T) {
	c := New("sys")
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			c.Append(User("u"), Assistant("a"))
		}()
	}
	wg.Wait()

	msgs := c.Messages()
	if len(msgs) != 101 {
		t.Fatalf("len = %d, want 101", len(msgs))
	}
	for i := 1; i < len(msgs); i += 2 {
		if msgs[i].Role != RoleUser || msgs[i+1].Role != RoleAssistant {
			t.Fatalf("pair at %d split: %q, %q", i, msgs[i].Role, msgs[i+1].Role)
		}
	}
}
