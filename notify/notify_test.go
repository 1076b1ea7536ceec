package notify

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/MrEthical07/goIdentity/store"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func TestTemplatesAndSubjects(t *testing.T) {
	cases := []struct {
		typ      store.VerificationType
		template string
		subject  string
		purpose  string
	}{
		{store.EmailVerification, "EMAIL_VERIFICATION", "Verify Your Email Address", "email verification"},
		{store.PasswordReset, "PASSWORD_RESET", "Reset Your Password", "password reset"},
		{store.TwoFactorAuth, "TWO_FACTOR_CODE", "Your Two-Factor Authentication Code", "two factor auth"},
		{store.PhoneNumberChange, "PIN_VERIFICATION", "Verify Your New Phone Number", "phone number change"},
		{store.AccountLinking, "PIN_VERIFICATION", "Link Your Account", "account linking"},
		{store.PhoneVerification, "PIN_VERIFICATION", "Your Verification Code", "phone verification"},
	}
	for _, tc := range cases {
		if got := TemplateFor(tc.typ); got != tc.template {
			t.Fatalf("%s: expected template %s, got %s", tc.typ, tc.template, got)
		}
		if got := SubjectFor(tc.typ); got != tc.subject {
			t.Fatalf("%s: expected subject %q, got %q", tc.typ, tc.subject, got)
		}
		if got := PurposeLabel(tc.typ); got != tc.purpose {
			t.Fatalf("%s: expected purpose %q, got %q", tc.typ, tc.purpose, got)
		}
	}
	if ChannelFor("a@b.c") != Email || ChannelFor("+15550100") != SMS {
		t.Fatal("unexpected channel selection")
	}
}

func TestDispatcherRetriesUntilSuccess(t *testing.T) {
	var calls int32
	done := make(chan struct{})
	sender := SenderFunc(func(context.Context, Message) error {
		if atomic.AddInt32(&calls, 1) < 3 {
			return errors.New("smtp down")
		}
		close(done)
		return nil
	})

	d := NewDispatcher(sender, DispatcherConfig{Workers: 1, InitialBackoff: time.Millisecond}, nil)
	defer d.Close()
	if err := d.Enqueue(Message{To: "a@example.com"}); err != nil {
		t.Fatalf("Enqueue: %v", err)
	}
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("message was not delivered")
	}
	if got := atomic.LoadInt32(&calls); got != 3 {
		t.Fatalf("expected 3 attempts, got %d", got)
	}
}

func TestDispatcherGivesUpAfterMaxAttempts(t *testing.T) {
	core, logs := observer.New(zap.WarnLevel)
	var calls int32
	sender := SenderFunc(func(context.Context, Message) error {
		atomic.AddInt32(&calls, 1)
		return errors.New("permanent outage")
	})

	d := NewDispatcher(sender, DispatcherConfig{Workers: 1, MaxAttempts: 3, InitialBackoff: time.Millisecond}, zap.New(core))
	if err := d.Enqueue(Message{To: "a@example.com", Template: "PASSWORD_RESET"}); err != nil {
		t.Fatalf("Enqueue: %v", err)
	}
	d.Close()

	if got := atomic.LoadInt32(&calls); got != 3 {
		t.Fatalf("expected 3 attempts, got %d", got)
	}
	if logs.FilterMessage("notification dropped").Len() != 1 {
		t.Fatal("expected drop to be logged")
	}
}

func TestDispatcherQueueFullAndClosed(t *testing.T) {
	block := make(chan struct{})
	var once sync.Once
	started := make(chan struct{})
	sender := SenderFunc(func(context.Context, Message) error {
		once.Do(func() { close(started) })
		<-block
		return nil
	})

	d := NewDispatcher(sender, DispatcherConfig{Workers: 1, BufferSize: 1, InitialBackoff: time.Millisecond}, nil)
	if err := d.Enqueue(Message{}); err != nil {
		t.Fatalf("first Enqueue: %v", err)
	}
	<-started
	if err := d.Enqueue(Message{}); err != nil {
		t.Fatalf("second Enqueue: %v", err)
	}
	if err := d.Enqueue(Message{}); !errors.Is(err, ErrQueueFull) {
		t.Fatalf("expected ErrQueueFull, got %v", err)
	}
	close(block)
	d.Close()
	if err := d.Enqueue(Message{}); !errors.Is(err, ErrClosed) {
		t.Fatalf("expected ErrClosed, got %v", err)
	}
}
