package backend

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/hazyhaar/weslplay/horosafe"
)

// maxResponseBody caps how much of a backend response is read (10 MiB).
const maxResponseBody int64 = 10 << 20

// HTTPTransport returns a factory whose handlers POST the payload as JSON to
// the route endpoint. A 2xx body is the response; a 422 body is the
// backend's structured error document and is returned as a *Fault; any other
// status is a plain error.
func HTTPTransport() TransportFactory {
	return func(rt Route) (Handler, func(), error) {
		if err := horosafe.ValidateScheme(rt.Endpoint); err != nil {
			return nil, nil, err
		}
		timeout := rt.Timeout
		if timeout <= 0 {
			timeout = 30 * time.Second
		}
		client := &http.Client{Timeout: timeout}

		h := func(ctx context.Context, payload []byte) ([]byte, error) {
			req, err := http.NewRequestWithContext(ctx, http.MethodPost, rt.Endpoint, bytes.NewReader(payload))
			if err != nil {
				return nil, fmt.Errorf("backend/http: create request: %w", err)
			}
			req.Header.Set("Content-Type", "application/json")

			resp, err := client.Do(req)
			if err != nil {
				return nil, fmt.Errorf("backend/http: do request: %w", err)
			}
			defer resp.Body.Close()

			body, err := horosafe.LimitedReadAll(resp.Body, maxResponseBody)
			if err != nil {
				return nil, fmt.Errorf("backend/http: read response: %w", err)
			}
			switch {
			case resp.StatusCode >= 200 && resp.StatusCode < 300:
				return body, nil
			case resp.StatusCode == http.StatusUnprocessableEntity:
				return nil, &Fault{Body: body}
			default:
				return nil, fmt.Errorf("backend/http: status %d: %s", resp.StatusCode, body)
			}
		}
		return h, client.CloseIdleConnections, nil
	}
}
