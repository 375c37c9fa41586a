package middleware

import (
	"context"
	"errors"
	"testing"
	"time"

	"go.uber.org/zap"

	"chanrpc/rpcerr"
)

func echoHandler(ctx context.Context, req *Request) (any, error) {
	return "ok", nil
}

func slowHandler(ctx context.Context, req *Request) (any, error) {
	time.Sleep(200 * time.Millisecond)
	return "ok", nil
}

func TestLogging(t *testing.T) {
	handler := Logging(zap.NewNop())(echoHandler)
	result, err := handler(context.Background(), &Request{Module: "Detail", Method: "getName"})
	if err != nil || result != "ok" {
		t.Fatalf("result=%v err=%v, want ok/nil", result, err)
	}
}

func TestTimeoutPass(t *testing.T) {
	handler := Timeout(500 * time.Millisecond)(echoHandler)
	result, err := handler(context.Background(), &Request{Module: "Detail", Method: "getName"})
	if err != nil || result != "ok" {
		t.Fatalf("result=%v err=%v, want ok/nil", result, err)
	}
}

func TestTimeoutExceeded(t *testing.T) {
	handler := Timeout(50 * time.Millisecond)(slowHandler)
	_, err := handler(context.Background(), &Request{Module: "Detail", Method: "getName"})
	if !errors.Is(err, rpcerr.ErrTimeout) {
		t.Fatalf("err = %v, want ErrTimeout", err)
	}
}

func TestRateLimit(t *testing.T) {
	handler := RateLimit(1, 2)(echoHandler)
	req := &Request{Module: "Detail", Method: "getName"}

	for i := 0; i < 2; i++ {
		if _, err := handler(context.Background(), req); err != nil {
			t.Fatalf("request %d should pass, got error: %v", i, err)
		}
	}
	if _, err := handler(context.Background(), req); err == nil {
		t.Fatal("third request should be rate limited")
	}
}

func TestRetryRecoversFromTransientError(t *testing.T) {
	calls := 0
	flaky := func(ctx context.Context, req *Request) (any, error) {
		calls++
		if calls < 3 {
			return nil, rpcerr.ErrConnection
		}
		return "recovered", nil
	}
	handler := Retry(5, time.Millisecond)(flaky)
	result, err := handler(context.Background(), &Request{Module: "Detail", Method: "getName"})
	if err != nil || result != "recovered" {
		t.Fatalf("result=%v err=%v, want recovered/nil after retries", result, err)
	}
	if calls != 3 {
		t.Errorf("calls = %d, want 3", calls)
	}
}

func TestRetryDoesNotRetryNonTransientError(t *testing.T) {
	calls := 0
	failing := func(ctx context.Context, req *Request) (any, error) {
		calls++
		return nil, rpcerr.ErrMethod
	}
	handler := Retry(5, time.Millisecond)(failing)
	if _, err := handler(context.Background(), &Request{}); !errors.Is(err, rpcerr.ErrMethod) {
		t.Fatalf("err = %v, want ErrMethod", err)
	}
	if calls != 1 {
		t.Errorf("calls = %d, want 1 (no retry for non-transient error)", calls)
	}
}

func TestChainOrdersOutermostFirst(t *testing.T) {
	var order []string
	mark := func(name string) Middleware {
		return func(next HandlerFunc) HandlerFunc {
			return func(ctx context.Context, req *Request) (any, error) {
				order = append(order, name+":before")
				result, err := next(ctx, req)
				order = append(order, name+":after")
				return result, err
			}
		}
	}
	chained := Chain(mark("A"), mark("B"))
	handler := chained(echoHandler)
	if _, err := handler(context.Background(), &Request{}); err != nil {
		t.Fatal(err)
	}
	want := []string{"A:before", "B:before", "B:after", "A:after"}
	if len(order) != len(want) {
		t.Fatalf("order = %v, want %v", order, want)
	}
	for i := range want {
		if order[i] != want[i] {
			t.Errorf("order[%d] = %q, want %q", i, order[i], want[i])
		}
	}
}
