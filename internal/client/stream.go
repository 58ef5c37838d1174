package client

import (
	"context"
	"fmt"
	"strings"
	"time"

	"otpmml/internal/server"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

func (c *Client) streamURL() string {
	switch {
	case strings.HasPrefix(c.base, "https://"):
		return "wss://" + strings.TrimPrefix(c.base, "https://") + "/stream"
	case strings.HasPrefix(c.base, "http://"):
		return "ws://" + strings.TrimPrefix(c.base, "http://") + "/stream"
	}
	return c.base + "/stream"
}

// Stream evaluates model at every row over a single websocket session and
// returns the outputs in row order. It stops at the first row the server
// rejects.
func (c *Client) Stream(ctx context.Context, model string, rows [][]float64) ([][]float64, error) {
	url := c.streamURL()
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, url, nil)
	if err != nil {
		return nil, fmt.Errorf("dial failed: %w", err)
	}
	defer func() {
		conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
		conn.Close()
		log.Debug().Str("url", url).Msg("stream session closed")
	}()

	// unblock reads when the caller gives up
	stop := context.AfterFunc(ctx, func() { conn.SetReadDeadline(time.Now()) })
	defer stop()

	out := make([][]float64, len(rows))
	for i, row := range rows {
		if err := conn.WriteJSON(server.StreamRequest{Model: model, Input: row}); err != nil {
			return nil, fmt.Errorf("row %d: write failed: %w", i, err)
		}
		var resp server.StreamResponse
		if err := conn.ReadJSON(&resp); err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			return nil, fmt.Errorf("row %d: read failed: %w", i, err)
		}
		if resp.Error != "" {
			return nil, fmt.Errorf("row %d: %w: %s", i, ErrRemote, resp.Error)
		}
		out[i] = resp.Output
	}
	return out, nil
}
