package pipeline

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestExponentialBackoff(t *testing.T) {
	b := ExponentialBackoff(time.Second, 5*time.Second)
	want := map[int]time.Duration{1: time.Second, 2: 2 * time.Second, 3: 4 * time.Second, 4: 5 * time.Second, 30: 5 * time.Second}
	for attempt, d := range want {
		if got := b(attempt); got != d {
			t.Errorf("backoff(%d) = %v, want %v", attempt, got, d)
		}
	}
}

func TestFixedBackoff(t *testing.T) {
	b := FixedBackoff(500 * time.Millisecond)
	if b(1) != 500*time.Millisecond || b(7) != 500*time.Millisecond {
		t.Error("FixedBackoff should not vary")
	}
}

func TestRetryPolicy_Do(t *testing.T) {
	p := RetryPolicy{MaxAttempts: 3, Backoff: FixedBackoff(0)}

	calls := 0
	n, err := p.Do(context.Background(), func(int) error {
		calls++
		if calls < 2 {
			return errors.New("flaky")
		}
		return nil
	})
	if err != nil || n != 2 {
		t.Errorf("Do = %d, %v; want 2, nil", n, err)
	}

	boom := errors.New("boom")
	n, err = p.Do(context.Background(), func(int) error { return boom })
	if !errors.Is(err, boom) || n != 3 {
		t.Errorf("Do = %d, %v; want 3, boom", n, err)
	}
}

func TestRetryPolicy_DoWaitsBetweenAttempts(t *testing.T) {
	var waits []int
	p := RetryPolicy{MaxAttempts: 3, Backoff: func(a int) time.Duration {
		waits = append(waits, a)
		return time.Millisecond
	}}
	p.Do(context.Background(), func(int) error { return errors.New("x") })
	if len(waits) != 2 || waits[0] != 1 || waits[1] != 2 {
		t.Errorf("backoff consulted for %v, want [1 2]", waits)
	}
}

func TestRetryPolicy_DoCancelledDuringBackoff(t *testing.T) {
	p := RetryPolicy{MaxAttempts: 5, Backoff: FixedBackoff(time.Hour)}
	ctx, cancel := context.WithCancel(context.Background())
	n, err := p.Do(ctx, func(int) error {
		cancel()
		return errors.New("x")
	})
	if n != 1 || !errors.Is(err, context.Canceled) {
		t.Errorf("Do = %d, %v; want 1, context.Canceled", n, err)
	}
}

func TestQuestionRequest_Validate(t *testing.T) {
	ok := QuestionRequest{Question: "hi", UserID: "u"}
	if err := ok.Validate(); err != nil {
		t.Errorf("Validate: %v", err)
	}

	long := make([]rune, MaxQuestionRunes)
	for i := range long {
		long[i] = 'é'
	}
	if err := (QuestionRequest{Question: string(long), UserID: "u"}).Validate(); err != nil {
		t.Errorf("500 multi-byte runes should pass: %v", err)
	}
	if err := (QuestionRequest{Question: string(long) + "x", UserID: "u"}).Validate(); !errors.Is(err, ErrInvalidRequest) {
		t.Errorf("501 runes: err = %v", err)
	}
	if err := (QuestionRequest{Question: "q"}).Validate(); !errors.Is(err, ErrInvalidRequest) {
		t.Errorf("missing user: err = %v", err)
	}
}

func TestStageString(t *testing.T) {
	if StageContextBuilding.String() != "context_building" || Stage(99).String() != "stage(99)" {
		t.Error("unexpected Stage.String output")
	}
}
