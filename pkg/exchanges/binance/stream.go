package binance

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"strings"
	"sync"

	"github.com/gorilla/websocket"
)

// MarkPrice is one streamed mark-price update.
type MarkPrice struct {
	Symbol string
	Price  float64
	Time   int64
}

// StreamClient manages streaming from the Binance futures public websocket.
type StreamClient struct {
	StreamURL string
	dialer    *websocket.Dialer
}

// NewStreamClient builds a websocket client; testnet toggles the host.
func NewStreamClient(testnet bool) *StreamClient {
	host := "fstream.binance.com"
	if testnet {
		host = "stream.binancefuture.com"
	}
	return &StreamClient{
		StreamURL: "wss://" + host + "/ws",
		dialer:    websocket.DefaultDialer,
	}
}

// SubscribeMarkPrices listens to the mark-price stream for one symbol and
// pushes updates into a channel. It returns the channel and a stop function.
func (c *StreamClient) SubscribeMarkPrices(ctx context.Context, symbol string) (<-chan MarkPrice, func(), error) {
	stream := fmt.Sprintf("%s@markPrice@1s", strings.ToLower(pair(symbol)))
	u := fmt.Sprintf("%s/%s", c.StreamURL, stream)

	conn, _, err := c.dialer.DialContext(ctx, u, nil)
	if err != nil {
		return nil, nil, fmt.Errorf("dial binance futures ws: %w", err)
	}

	out := make(chan MarkPrice, 100)
	var once sync.Once
	stop := func() {
		once.Do(func() {
			// Ignore errors; connection may already be closed.
			_ = conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			_ = conn.Close()
			close(out)
		})
	}

	go func() {
		defer stop()
		for {
			select {
			case <-ctx.Done():
				return
			default:
			}

			_, msg, err := conn.ReadMessage()
			if err != nil {
				if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) ||
					strings.Contains(err.Error(), "use of closed network connection") {
					return
				}
				log.Printf("binance ws read error: %v", err)
				return
			}

			var raw struct {
				Symbol string `json:"s"`
				Price  string `json:"p"`
				Time   int64  `json:"E"`
			}
			if err := json.Unmarshal(msg, &raw); err != nil {
				log.Printf("binance ws parse error: %v", err)
				continue
			}
			out <- MarkPrice{Symbol: coin(raw.Symbol), Price: parseF(raw.Price), Time: raw.Time}
		}
	}()

	return out, stop, nil
}
