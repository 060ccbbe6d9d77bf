package noncecache

import (
	"strings"
	"sync"
	"testing"
	"time"
)

func TestIssueAndValidate(t *testing.T) {
	c := New(time.Minute)
	defer c.Close()

	key := Key("store", "session", "data/aa/bb/cc")
	nonce, err := c.Issue(key)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(nonce) != 32 {
		t.Errorf("expected 32-hex nonce, got %q", nonce)
	}

	if !c.ValidateAndConsume(key, nonce) {
		t.Error("freshly issued nonce failed validation")
	}
}

func TestSingleUse(t *testing.T) {
	c := New(time.Minute)
	defer c.Close()

	key := Key("store", "session", "file")
	nonce, err := c.Issue(key)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if !c.ValidateAndConsume(key, nonce) {
		t.Fatal("first validation must succeed")
	}
	if c.ValidateAndConsume(key, nonce) {
		t.Error("nonce replay must fail")
	}
}

func TestWrongCandidate(t *testing.T) {
	c := New(time.Minute)
	defer c.Close()

	key := Key("store", "session", "file")
	nonce, err := c.Issue(key)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if c.ValidateAndConsume(key, "deadbeef") {
		t.Error("wrong candidate must fail")
	}
	// A failed validation must not consume the real nonce.
	if !c.ValidateAndConsume(key, nonce) {
		t.Error("real nonce should survive a failed validation")
	}
}

func TestUnknownKey(t *testing.T) {
	c := New(time.Minute)
	defer c.Close()

	if c.ValidateAndConsume("never_issued", "00") {
		t.Error("unknown key must fail")
	}
	if c.ValidateAndConsume("never_issued", "") {
		t.Error("empty candidate must fail")
	}
}

func TestExpiry(t *testing.T) {
	c := New(50 * time.Millisecond)
	defer c.Close()

	key := Key("store", "session", "file")
	nonce, err := c.Issue(key)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	time.Sleep(120 * time.Millisecond)
	if c.ValidateAndConsume(key, nonce) {
		t.Error("expired nonce must fail validation")
	}
}

func TestAtMostOneWinner(t *testing.T) {
	c := New(time.Minute)
	defer c.Close()

	key := Key("store", "session", "file")
	nonce, err := c.Issue(key)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	var wg sync.WaitGroup
	wins := make(chan bool, 32)
	for i := 0; i < 32; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if c.ValidateAndConsume(key, nonce) {
				wins <- true
			}
		}()
	}
	wg.Wait()
	close(wins)

	var count int
	for range wins {
		count++
	}
	if count != 1 {
		t.Errorf("expected exactly one successful validation, got %d", count)
	}
}

func TestKeySchema(t *testing.T) {
	got := Key("aaaa", "bbbb", "data/cc/dd/ee")
	if got != "aaaa_bbbb_data/cc/dd/ee" {
		t.Errorf("unexpected key %q", got)
	}
	if !strings.Contains(got, "_") {
		t.Error("key must join parts with underscores")
	}
}
