package minter

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/MazePlayLabs/gamepass/pkg/gamepass"
	"go.uber.org/zap"
)

func mustAccount(test *testing.T, raw string) gamepass.AccountID {
	test.Helper()
	account, err := gamepass.NewAccountID(raw)
	if err != nil {
		test.Fatalf("account %q: %v", raw, err)
	}
	return account
}

func waitForRequest(test *testing.T, received <-chan mintRequest) mintRequest {
	test.Helper()
	select {
	case request := <-received:
		return request
	case <-time.After(2 * time.Second):
		test.Fatalf("timed out waiting for mint request")
		return mintRequest{}
	}
}

func TestClientPostsMintRequest(test *testing.T) {
	test.Parallel()
	received := make(chan mintRequest, 1)
	server := httptest.NewServer(http.HandlerFunc(func(writer http.ResponseWriter, request *http.Request) {
		if request.Method != http.MethodPost || request.URL.Path != "/v1/mint" {
			test.Errorf("unexpected request: %s %s", request.Method, request.URL.Path)
		}
		if authorization := request.Header.Get("Authorization"); authorization != "Bearer mint-token" {
			test.Errorf("unexpected authorization header: %q", authorization)
		}
		var decoded mintRequest
		if err := json.NewDecoder(request.Body).Decode(&decoded); err != nil {
			test.Errorf("decode body: %v", err)
		}
		received <- decoded
		writer.WriteHeader(http.StatusAccepted)
	}))
	defer server.Close()

	client, err := NewClient(server.URL, zap.NewNop(), WithAuthToken("mint-token"))
	if err != nil {
		test.Fatalf("new client: %v", err)
	}
	referral := mustAccount(test, "referrer.test")
	client.Mint(context.Background(), mustAccount(test, "winner.test"), gamepass.TokensFromWhole(3), &referral)

	request := waitForRequest(test, received)
	if request.Recipient != "winner.test" {
		test.Fatalf("unexpected recipient: %q", request.Recipient)
	}
	if request.Amount != gamepass.TokensFromWhole(3).String() {
		test.Fatalf("unexpected amount: %q", request.Amount)
	}
	if request.Referral == nil || *request.Referral != "referrer.test" {
		test.Fatalf("unexpected referral: %v", request.Referral)
	}
}

func TestClientOmitsReferralWhenAbsent(test *testing.T) {
	test.Parallel()
	received := make(chan mintRequest, 1)
	server := httptest.NewServer(http.HandlerFunc(func(writer http.ResponseWriter, request *http.Request) {
		var decoded mintRequest
		if err := json.NewDecoder(request.Body).Decode(&decoded); err != nil {
			test.Errorf("decode body: %v", err)
		}
		received <- decoded
		writer.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	client, err := NewClient(server.URL, zap.NewNop())
	if err != nil {
		test.Fatalf("new client: %v", err)
	}
	client.Mint(context.Background(), mustAccount(test, "winner.test"), gamepass.TokensFromWhole(1), nil)

	request := waitForRequest(test, received)
	if request.Referral != nil {
		test.Fatalf("expected no referral, got %v", request.Referral)
	}
}

func TestClientRejectsEmptyBaseURL(test *testing.T) {
	test.Parallel()
	if _, err := NewClient("   ", zap.NewNop()); err == nil {
		test.Fatalf("expected error for empty base url")
	}
	if _, err := NewClient("http://minter.test", nil); err == nil {
		test.Fatalf("expected error for nil logger")
	}
}
