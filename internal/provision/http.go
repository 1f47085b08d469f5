package provision

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
)

type authFunc func(ctx context.Context, req *http.Request) error

func doJSON(ctx context.Context, client *http.Client, service, method, endpoint string, auth authFunc, payload any, out any) error {
	var body io.Reader
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			return err
		}
		body = bytes.NewReader(raw)
	}
	req, err := http.NewRequestWithContext(ctx, method, endpoint, body)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if auth != nil {
		if err := auth(ctx, req); err != nil {
			return err
		}
	}
	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	responseBody, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if resp.StatusCode >= 300 {
		if len(responseBody) > 2048 {
			responseBody = responseBody[:2048]
		}
		return &RequestError{Service: service, StatusCode: resp.StatusCode, Body: string(responseBody)}
	}
	if len(responseBody) == 0 || out == nil {
		return nil
	}
	return json.Unmarshal(responseBody, out)
}
