package adapter

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/genai"
)

func TestStripDeliberation(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"plain", "hello", "hello"},
		{"closed think block", "<think>plan the answer</think>\nhello", "hello"},
		{"multiline thinking", "<thinking>\na\nb\n</thinking>answer", "answer"},
		{"uppercase tags", "<THINK>x</THINK>done", "done"},
		{"orphan close tag", "I should greet.</think>Hi there", "Hi there"},
		{"unterminated open tag", "Result: 4 <reasoning>wait, let me", "Result: 4"},
		{"only deliberation", "<think>nothing else</think>", ""},
		{"non-ascii before orphan close", "İİİİİİİİİİ</think>final answer", "final answer"},
		{"non-ascii before unterminated open", "answer İİİİİ<THINK>draft", "answer İİİİİ"},
		{"non-ascii inside block", "<think>İstanbul ğüş</think>Ankara", "Ankara"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, StripDeliberation(tt.in))
		})
	}
}

func TestCleanStripsAndRejectsEmpty(t *testing.T) {
	ctx := context.Background()

	p := Clean(NewScriptedMockAdapter("m", MockStep{Content: "<think>x</think> ok "}))
	art, err := p.Invoke(ctx, "hi", Params{})
	require.NoError(t, err)
	assert.Equal(t, "ok", art.Content)
	assert.Equal(t, 2, art.Version)

	empty := Clean(NewScriptedMockAdapter("m", MockStep{Content: "<think>only</think>"}))
	_, err = empty.Invoke(ctx, "hi", Params{})
	require.Error(t, err)
	assert.Equal(t, KindInvalidResponse, KindOf(err))
	assert.ErrorIs(t, err, ErrEmptyOutput)
}

func TestCleanKeepsNonASCIIContent(t *testing.T) {
	want := "answer " + strings.Repeat("İ", 20)
	p := Clean(NewScriptedMockAdapter("m", MockStep{Content: want + "<think>"}))
	art, err := p.Invoke(context.Background(), "hi", Params{})
	require.NoError(t, err)
	assert.Equal(t, want, art.Content)
}

func TestCleanIsIdempotentAndKeepsPinger(t *testing.T) {
	m := NewMockAdapter("m")
	once := Clean(m)
	assert.Same(t, once, Clean(once))

	pinger, ok := AsPinger(once)
	require.True(t, ok)
	assert.NoError(t, pinger.Ping(context.Background()))
}

func TestKindForStatus(t *testing.T) {
	tests := []struct {
		status int
		want   Kind
	}{
		{429, KindRateLimited},
		{408, KindTimeout},
		{504, KindTimeout},
		{500, KindUnavailable},
		{503, KindUnavailable},
		{401, KindUnavailable},
		{400, KindInvalidResponse},
		{418, KindUnknown},
	}

	for _, tt := range tests {
		t.Run(fmt.Sprintf("status_%d", tt.status), func(t *testing.T) {
			assert.Equal(t, tt.want, KindForStatus(tt.status))
		})
	}
}

func TestKindOf(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want Kind
	}{
		{"nil", nil, ""},
		{"deadline", fmt.Errorf("call: %w", context.DeadlineExceeded), KindTimeout},
		{"canceled", context.Canceled, KindCanceled},
		{"adapter error", NewError("x", KindRateLimited, errors.New("slow down")), KindRateLimited},
		{"anthropic status", fmt.Errorf("wrap: %w", anthropicError(529)), KindUnavailable},
		{"genai status", genai.APIError{Code: 429}, KindRateLimited},
		{"dial failure", &net.OpError{Op: "dial", Err: errors.New("connection refused")}, KindUnavailable},
		{"opaque", errors.New("boom"), KindUnknown},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, KindOf(tt.err))
		})
	}
}

func TestClassifyKeepsExistingKind(t *testing.T) {
	orig := NewError("a", KindInvalidResponse, errors.New("bad json"))
	assert.Same(t, orig, Classify("b", orig))

	err := Classify("b", context.DeadlineExceeded)
	var adapterErr *Error
	require.ErrorAs(t, err, &adapterErr)
	assert.Equal(t, "b", adapterErr.Provider)
	assert.Equal(t, KindTimeout, adapterErr.Kind)
}

func TestIsTransient(t *testing.T) {
	assert.True(t, IsTransient(NewError("", KindTimeout, nil)))
	assert.True(t, IsTransient(NewError("", KindUnavailable, nil)))
	assert.False(t, IsTransient(NewError("", KindRateLimited, nil)))
	assert.False(t, IsTransient(context.Canceled))
	assert.False(t, IsTransient(nil))
}

func TestMockAdapterScript(t *testing.T) {
	ctx := context.Background()
	m := NewScriptedMockAdapter("m",
		FailWith(KindTimeout),
		MockStep{Content: "second"},
	)

	_, err := m.Invoke(ctx, "p", Params{})
	var adapterErr *Error
	require.ErrorAs(t, err, &adapterErr)
	assert.Equal(t, "m", adapterErr.Provider)

	art, err := m.Invoke(ctx, "p", Params{})
	require.NoError(t, err)
	assert.Equal(t, "second", art.Content)

	art, err = m.Invoke(ctx, "p", Params{})
	require.NoError(t, err)
	assert.Equal(t, "second", art.Content)
	assert.Equal(t, 3, m.Calls())
}

func TestMockAdapterHonoursDeadline(t *testing.T) {
	m := NewScriptedMockAdapter("slow", MockStep{Delay: time.Second})
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	_, err := m.Invoke(ctx, "p", Params{})
	assert.Equal(t, KindTimeout, KindOf(err))
}

func anthropicError(status int) *anthropic.Error {
	return &anthropic.Error{
		StatusCode: status,
		Request:    httptest.NewRequest(http.MethodPost, "https://api.anthropic.com/v1/messages", nil),
		Response:   &http.Response{StatusCode: status},
	}
}
