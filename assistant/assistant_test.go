package assistant

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/neuron-labs/marketd/catalog"
)

func testRecord() catalog.Record {
	return catalog.Record{
		Author:      "openzeppelin",
		Slug:        "erc20-vault",
		Name:        "ERC20 Vault",
		Description: "Token vault with timelocked withdrawals",
		WriteFunctions: []catalog.FunctionRef{
			{Name: "deposit", Signature: "deposit(uint256)", Description: "Deposit tokens"},
		},
		ReadFunctions: []catalog.FunctionRef{
			{Name: "balanceOf", Signature: "balanceOf(address)", Description: "Account balance"},
		},
	}
}

func modelResponse(text string) map[string]interface{} {
	return map[string]interface{}{
		"candidates": []map[string]interface{}{
			{"content": map[string]interface{}{
				"parts": []map[string]string{{"text": text}},
			}},
		},
	}
}

func newTestAssistant(t *testing.T, endpoint string) *Assistant {
	t.Helper()
	a, err := New(&Config{
		Endpoint: endpoint,
		APIKey:   "test-key",
		Timeout:  5 * time.Second,
	}, zap.NewNop())
	require.NoError(t, err)
	return a
}

func TestAsk(t *testing.T) {
	var gotKey string
	var gotPrompt string

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotKey = r.URL.Query().Get("key")

		var req generateRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		require.Len(t, req.Contents, 1)
		require.Len(t, req.Contents[0].Parts, 1)
		gotPrompt = req.Contents[0].Parts[0].Text

		json.NewEncoder(w).Encode(modelResponse("The deposit function locks tokens."))
	}))
	defer server.Close()

	a := newTestAssistant(t, server.URL)

	answer, err := a.Ask(context.Background(), "What does deposit do?", "contract Vault {}", testRecord())
	require.NoError(t, err)
	assert.Equal(t, "The deposit function locks tokens.", answer)
	assert.Equal(t, "test-key", gotKey)

	// prompt carries the question, source and reference material in order
	assert.Contains(t, gotPrompt, "Question: What does deposit do?")
	assert.Contains(t, gotPrompt, "contract Vault {}")
	assert.Contains(t, gotPrompt, "deposit(uint256)")
	assert.Contains(t, gotPrompt, "balanceOf(address)")
	assert.Contains(t, gotPrompt, "Contract name: ERC20 Vault")
}

func TestAsk_BlankQuestion(t *testing.T) {
	var requests atomic.Int64
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests.Add(1)
	}))
	defer server.Close()

	a := newTestAssistant(t, server.URL)

	for _, question := range []string{"", "   ", "\n\t"} {
		_, err := a.Ask(context.Background(), question, "src", testRecord())
		assert.ErrorIs(t, err, ErrBlankQuestion)
	}
	assert.Equal(t, int64(0), requests.Load())
}

func TestAsk_SingleFlight(t *testing.T) {
	release := make(chan struct{})
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-release
		json.NewEncoder(w).Encode(modelResponse("ok"))
	}))
	defer server.Close()

	a := newTestAssistant(t, server.URL)

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		_, err := a.Ask(context.Background(), "first?", "src", testRecord())
		assert.NoError(t, err)
	}()

	// wait for the first question to hold the guard
	require.Eventually(t, a.Busy, time.Second, time.Millisecond)

	_, err := a.Ask(context.Background(), "second?", "src", testRecord())
	assert.ErrorIs(t, err, ErrBusy)

	close(release)
	wg.Wait()

	// guard releases after completion
	_, err = a.Ask(context.Background(), "third?", "src", testRecord())
	assert.NoError(t, err)
}

func TestAsk_Errors(t *testing.T) {
	tests := []struct {
		name    string
		handler http.HandlerFunc
		wantErr string
	}{
		{
			name: "server error",
			handler: func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusTooManyRequests)
			},
			wantErr: "status 429",
		},
		{
			name: "no candidates",
			handler: func(w http.ResponseWriter, r *http.Request) {
				json.NewEncoder(w).Encode(map[string]interface{}{"candidates": []interface{}{}})
			},
			wantErr: "no candidates",
		},
		{
			name: "malformed body",
			handler: func(w http.ResponseWriter, r *http.Request) {
				w.Write([]byte("not json"))
			},
			wantErr: "failed to decode model response",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(tt.handler)
			defer server.Close()

			a := newTestAssistant(t, server.URL)
			_, err := a.Ask(context.Background(), "why?", "src", testRecord())
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestNew_Validation(t *testing.T) {
	_, err := New(nil, zap.NewNop())
	assert.Error(t, err)

	_, err = New(&Config{APIKey: "k"}, zap.NewNop())
	assert.Error(t, err)

	_, err = New(&Config{Endpoint: "http://example.com"}, zap.NewNop())
	assert.Error(t, err)
}

func TestBuildPrompt_Order(t *testing.T) {
	prompt := BuildPrompt("What is this?", "contract C {}", testRecord())

	question := "Question: What is this?"
	source := "contract C {}"
	writeFns := "Write functions:"
	readFns := "Read functions:"
	name := "Contract name: ERC20 Vault"

	positions := []int{
		indexOf(t, prompt, question),
		indexOf(t, prompt, source),
		indexOf(t, prompt, writeFns),
		indexOf(t, prompt, readFns),
		indexOf(t, prompt, name),
	}
	for i := 1; i < len(positions); i++ {
		assert.Greater(t, positions[i], positions[i-1])
	}
}

func TestBuildPrompt_FunctionEntriesAndInstructions(t *testing.T) {
	prompt := BuildPrompt("q?", "src", testRecord())

	// entries enumerate name then signature
	assert.Contains(t, prompt, "- deposit: deposit(uint256)")
	assert.Contains(t, prompt, "- balanceOf: balanceOf(address)")

	for _, directive := range []string{
		"Direct answers to the question",
		"Code references when relevant",
		"Security implications if applicable",
		"Best practices and recommendations",
		"technical but understandable",
	} {
		assert.Contains(t, prompt, directive)
	}
}

func TestBuildPrompt_NoFunctions(t *testing.T) {
	rec := catalog.Record{Author: "a", Slug: "s", Name: "Bare"}
	prompt := BuildPrompt("q?", "src", rec)
	assert.Contains(t, prompt, "(none)")
}

func indexOf(t *testing.T, haystack, needle string) int {
	t.Helper()
	idx := strings.Index(haystack, needle)
	require.GreaterOrEqual(t, idx, 0, "prompt missing %q", needle)
	return idx
}
