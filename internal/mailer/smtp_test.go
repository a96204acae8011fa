package mailer

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/wneessen/go-mail"

	logx "immowatch/pkg/logx"
)

func TestSendDisabledWithoutCredentials(t *testing.T) {
	t.Parallel()
	s := New(Config{Host: "smtp.example.com"}, logx.Nop())
	called := false
	s.dial = func(context.Context, *mail.Msg) error { called = true; return nil }

	if s.Send(context.Background(), []string{"a@example.com"}, "subj", "<p>x</p>") {
		t.Fatal("Send = true while disabled")
	}
	if called {
		t.Fatal("dial called while disabled")
	}
}

func TestSendBuildsMessage(t *testing.T) {
	t.Parallel()
	s := New(Config{Host: "smtp.example.com", User: "agent@example.com", Password: "pw", FromName: "Immowatch"}, logx.Nop())
	var got *mail.Msg
	s.dial = func(_ context.Context, m *mail.Msg) error { got = m; return nil }

	if !s.Send(context.Background(), []string{"a@example.com", "b@example.com"}, "Daily report - 14/10/2026", "<p>x</p>") {
		t.Fatal("Send = false")
	}
	if got == nil {
		t.Fatal("dial not called")
	}
	if from := got.GetFromString(); len(from) != 1 || !strings.Contains(from[0], "agent@example.com") || !strings.Contains(from[0], "Immowatch") {
		t.Fatalf("from = %v", from)
	}
	if to := got.GetToString(); len(to) != 2 {
		t.Fatalf("to = %v", to)
	}
	if subj := got.GetGenHeader(mail.HeaderSubject); len(subj) != 1 || subj[0] != "Daily report - 14/10/2026" {
		t.Fatalf("subject = %v", subj)
	}
}

func TestSendReportsDialFailure(t *testing.T) {
	t.Parallel()
	s := New(Config{Host: "smtp.example.com", User: "agent@example.com", Password: "pw"}, logx.Nop())
	s.dial = func(context.Context, *mail.Msg) error { return errors.New("connection refused") }
	if s.Send(context.Background(), []string{"a@example.com"}, "s", "b") {
		t.Fatal("Send = true on dial failure")
	}
}

func TestSendRejectsBadRecipient(t *testing.T) {
	t.Parallel()
	s := New(Config{Host: "smtp.example.com", User: "agent@example.com", Password: "pw"}, logx.Nop())
	s.dial = func(context.Context, *mail.Msg) error { t.Fatal("dial called"); return nil }
	if s.Send(context.Background(), []string{"not an address"}, "s", "b") {
		t.Fatal("Send = true for invalid recipient")
	}
}
