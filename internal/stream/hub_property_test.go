package stream

import (
	"context"
	"testing"
	"time"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/rs/zerolog"
)

// Property: a subscriber that keeps up receives every message of its scope
// in publish order.
func TestProperty_MessagesDeliveredInPublishOrder(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 20
	parameters.Rng.Seed(time.Now().UnixNano())

	properties := gopter.NewProperties(parameters)

	properties.Property("fast subscriber sees seq 1..n in order", prop.ForAll(
		func(count int) bool {
			hub := NewHub(zerolog.Nop())
			ctx, cancel := context.WithCancel(context.Background())
			defer cancel()
			hub.Start(ctx)
			defer hub.Stop()

			sub := hub.Subscribe(GroupScope("g1"))
			results := make(chan bool, 1)
			go func() {
				want := int64(1)
				for msg := range sub.C {
					if msg.Seq != want {
						results <- false
						return
					}
					if want == int64(count) {
						results <- true
						return
					}
					want++
				}
				results <- false
			}()

			for i := 1; i <= count; i++ {
				// Pace publishing so the subscriber never falls behind.
				hub.Publish(ctx, Message{Scope: GroupScope("g1"), Seq: int64(i)})
				time.Sleep(time.Millisecond)
			}

			select {
			case ok := <-results:
				return ok
			case <-time.After(2 * time.Second):
				return false
			}
		},
		gen.IntRange(1, 30),
	))

	properties.TestingRun(t)
}

// Property: however far a subscriber falls behind, the last message it can
// read is the newest one published, and what it reads is increasing.
func TestProperty_SlowSubscriberEndsOnNewest(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 20
	parameters.Rng.Seed(time.Now().UnixNano())

	properties := gopter.NewProperties(parameters)

	properties.Property("newest snapshot survives", prop.ForAll(
		func(count int) bool {
			hub := NewHub(zerolog.Nop())
			ctx, cancel := context.WithCancel(context.Background())
			defer cancel()
			hub.Start(ctx)
			defer hub.Stop()

			sub := hub.Subscribe(GroupScope("g1"))
			for i := 1; i <= count; i++ {
				hub.Publish(ctx, Message{Scope: GroupScope("g1"), Seq: int64(i)})
			}

			deadline := time.After(2 * time.Second)
			var last int64
			for last < int64(count) {
				select {
				case msg := <-sub.C:
					if msg.Seq <= last {
						return false
					}
					last = msg.Seq
				case <-deadline:
					return false
				}
			}
			return last == int64(count)
		},
		gen.IntRange(1, 100),
	))

	properties.TestingRun(t)
}

func TestScopesAreIsolated(t *testing.T) {
	hub := NewHub(zerolog.Nop())
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	hub.Start(ctx)
	defer hub.Stop()

	g1 := hub.Subscribe(GroupScope("g1"))
	all := hub.Subscribe(AllScopes)

	hub.Publish(ctx, Message{Scope: GroupScope("g2"), Seq: 7})

	select {
	case msg := <-all.C:
		if msg.Seq != 7 {
			t.Fatalf("all-scopes subscriber got seq %d, want 7", msg.Seq)
		}
	case <-time.After(time.Second):
		t.Fatal("all-scopes subscriber received nothing")
	}

	select {
	case msg := <-g1.C:
		t.Fatalf("g1 subscriber received %s message", msg.Scope)
	case <-time.After(50 * time.Millisecond):
	}

	hub.Unsubscribe(g1)
	if _, ok := <-g1.C; ok {
		t.Fatal("channel should be closed after Unsubscribe")
	}
	if hub.SubscriberCount(GroupScope("g1")) != 0 {
		t.Fatal("subscriber still registered")
	}
}

// drain reads sub until it stays quiet for idle, returning what it read.
func drain(sub *Subscription, idle time.Duration) []Message {
	var got []Message
	for {
		select {
		case msg, ok := <-sub.C:
			if !ok {
				return got
			}
			got = append(got, msg)
		case <-time.After(idle):
			return got
		}
	}
}

// waitReceived blocks until the hub has taken n messages off its inbox.
func waitReceived(t *testing.T, hub *Hub, n uint64) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for hub.Metrics().Received < n {
		if time.Now().After(deadline) {
			t.Fatalf("hub received %d messages, want %d", hub.Metrics().Received, n)
		}
		time.Sleep(time.Millisecond)
	}
}

func TestSlowSubscriberKeepsEveryScope(t *testing.T) {
	hub := NewHub(zerolog.Nop())
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	hub.Start(ctx)
	defer hub.Stop()

	all := hub.Subscribe(AllScopes)
	hub.Publish(ctx, Message{Scope: GroupScope("A"), Seq: 2})
	hub.Publish(ctx, Message{Scope: ScopeMarket})
	hub.Publish(ctx, Message{Scope: GroupScope("B"), Seq: 1})
	hub.Publish(ctx, Message{Scope: GroupScope("A"), Seq: 3})
	waitReceived(t, hub, 4)

	latest := make(map[string]int64)
	for _, msg := range drain(all, 100*time.Millisecond) {
		latest[msg.Scope] = msg.Seq
	}

	if len(latest) != 3 {
		t.Fatalf("delivered scopes %v, want group:A, group:B and market", latest)
	}
	if latest[GroupScope("A")] != 3 {
		t.Fatalf("group:A ended on seq %d, want 3", latest[GroupScope("A")])
	}
	if latest[GroupScope("B")] != 1 {
		t.Fatalf("group:B ended on seq %d, want 1", latest[GroupScope("B")])
	}
}

// Property: a subscriber that reads nothing until publishing is over still
// ends on the newest message of every scope published, in increasing order
// per scope.
func TestProperty_SlowSubscriberEndsOnNewestPerScope(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 20
	parameters.Rng.Seed(time.Now().UnixNano())

	properties := gopter.NewProperties(parameters)
	scopes := []string{GroupScope("g1"), GroupScope("g2"), StrategyScope("s1"), ScopeMarket}

	properties.Property("no scope is evicted by another", prop.ForAll(
		func(picks []int) bool {
			hub := NewHub(zerolog.Nop())
			ctx, cancel := context.WithCancel(context.Background())
			defer cancel()
			hub.Start(ctx)
			defer hub.Stop()

			sub := hub.Subscribe(AllScopes)
			want := make(map[string]int64)
			for i, p := range picks {
				scope := scopes[p%len(scopes)]
				seq := int64(i + 1)
				hub.Publish(ctx, Message{Scope: scope, Seq: seq})
				want[scope] = seq
			}
			waitReceived(t, hub, uint64(len(picks)))

			got := make(map[string]int64)
			for _, msg := range drain(sub, 50*time.Millisecond) {
				if msg.Seq <= got[msg.Scope] {
					return false
				}
				got[msg.Scope] = msg.Seq
			}
			if len(got) != len(want) {
				return false
			}
			for scope, seq := range want {
				if got[scope] != seq {
					return false
				}
			}
			return true
		},
		gen.SliceOfN(40, gen.IntRange(0, 3)),
	))

	properties.TestingRun(t)
}
