package binancefut

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"stacker/internal/broker"
)

func TestPollFillsStopsOnContextCancel(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"orderId":1,"symbol":"GOLD_202412","status":"PARTIALLY_FILLED","executedQty":"2"}`)
	}))
	defer srv.Close()

	c, err := New(Config{APIKey: "k", APISecret: "s", RESTBaseURL: srv.URL})
	require.NoError(t, err)
	// No consumer and no buffer: the fill send can only complete via the
	// cancellation branch.
	c.fills = make(chan broker.Fill)
	c.watched["1"] = &watchedOrder{symbol: "GOLD_202412", orderID: 1, sign: 1}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		c.pollFills(ctx)
		close(done)
	}()

	time.Sleep(50 * time.Millisecond)
	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("poll still blocked after cancel")
	}
}
