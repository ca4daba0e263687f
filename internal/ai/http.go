package ai

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
)

// post sends payload as JSON and returns the response when the status is 2xx.
// The caller closes the body.
func (s settings) post(ctx context.Context, url string, payload any, headers map[string]string) (*http.Response, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("could not marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("could not create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s request failed: %w: %w", s.name, ErrUnavailable, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		defer resp.Body.Close()
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, s.statusError(resp.StatusCode, respBody)
	}
	return resp, nil
}

// decode posts payload and unmarshals the response body into out.
func (s settings) decode(ctx context.Context, url string, payload any, headers map[string]string, out any) error {
	resp, err := s.post(ctx, url, payload, headers)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("could not parse %s response: %w", s.name, err)
	}
	return nil
}

func (s settings) statusError(code int, body []byte) error {
	switch {
	case code == http.StatusUnauthorized || code == http.StatusForbidden:
		return fmt.Errorf("%s: %w (HTTP %d)", s.name, ErrUnauthorized, code)
	case code == http.StatusTooManyRequests:
		return fmt.Errorf("%s: %w", s.name, ErrRateLimited)
	case code >= 500:
		return fmt.Errorf("%s: %w (HTTP %d)", s.name, ErrUnavailable, code)
	}
	return fmt.Errorf("%s API returned status %d: %s", s.name, code, strings.TrimSpace(string(body)))
}

// streamLines reads resp line by line. parse turns one line into a text chunk
// (empty to skip) and reports whether the stream is finished.
func streamLines(ctx context.Context, resp *http.Response, parse func(line string) (string, bool)) (<-chan string, <-chan error) {
	textCh := make(chan string, 64)
	errCh := make(chan error, 1)

	go func() {
		defer close(textCh)
		defer close(errCh)
		defer resp.Body.Close()

		scanner := bufio.NewScanner(resp.Body)
		scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
		for scanner.Scan() {
			text, done := parse(scanner.Text())
			if text != "" {
				select {
				case textCh <- text:
				case <-ctx.Done():
					errCh <- ctx.Err()
					return
				}
			}
			if done {
				return
			}
		}

		if err := scanner.Err(); err != nil {
			errCh <- err
		}
	}()

	return textCh, errCh
}

// sseData extracts the payload of a server-sent "data:" line.
func sseData(line string) (string, bool) {
	if !strings.HasPrefix(line, "data:") {
		return "", false
	}
	return strings.TrimSpace(strings.TrimPrefix(line, "data:")), true
}
