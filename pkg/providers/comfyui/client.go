// Package comfyui queues image workflows on a ComfyUI server and waits for
// them over its websocket progress feed.
package comfyui

import (
	"bytes"
	"context"
	_ "embed"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/tinyland-inc/lupos/pkg/logger"
	"github.com/tinyland-inc/lupos/pkg/providers"
)

const backendName = "comfyui"

//go:embed workflow.json
var defaultWorkflow []byte

type Config struct {
	// Address is host:port or a full http(s) URL.
	Address string
	// WorkflowFile overrides the built-in Stable Cascade workflow.
	WorkflowFile string
	PromptNode   string
	OutputNode   string
	// Timeout bounds a whole GenerateImage call, including the wait for
	// the job to finish.
	Timeout time.Duration
}

type Client struct {
	base       *url.URL
	timeout    time.Duration
	workflow   map[string]map[string]any
	promptNode string
	outputNode string
	http       *http.Client
	dialer     *websocket.Dialer
}

type queueResponse struct {
	PromptID   string          `json:"prompt_id"`
	NodeErrors json.RawMessage `json:"node_errors,omitempty"`
}

type event struct {
	Type string `json:"type"`
	Data struct {
		Node     *string `json:"node"`
		PromptID string  `json:"prompt_id"`
	} `json:"data"`
}

type outputImage struct {
	Filename  string `json:"filename"`
	Subfolder string `json:"subfolder"`
	Type      string `json:"type"`
}

type historyEntry struct {
	Outputs map[string]struct {
		Images []outputImage `json:"images"`
	} `json:"outputs"`
}

func NewClient(cfg Config) (*Client, error) {
	addr := strings.TrimSpace(cfg.Address)
	if addr == "" {
		addr = "127.0.0.1:8188"
	}
	if !strings.Contains(addr, "://") {
		addr = "http://" + addr
	}
	base, err := url.Parse(strings.TrimRight(addr, "/"))
	if err != nil {
		return nil, fmt.Errorf("parse comfyui address: %w", err)
	}

	raw := defaultWorkflow
	if cfg.WorkflowFile != "" {
		if raw, err = os.ReadFile(cfg.WorkflowFile); err != nil {
			return nil, fmt.Errorf("read workflow: %w", err)
		}
	}
	var workflow map[string]map[string]any
	if err := json.Unmarshal(raw, &workflow); err != nil {
		return nil, fmt.Errorf("parse workflow: %w", err)
	}

	c := &Client{
		base:       base,
		timeout:    cfg.Timeout,
		workflow:   workflow,
		promptNode: cfg.PromptNode,
		outputNode: cfg.OutputNode,
		http:       &http.Client{Timeout: cfg.Timeout},
		dialer:     &websocket.Dialer{HandshakeTimeout: 10 * time.Second},
	}
	if c.promptNode == "" {
		c.promptNode = "6"
	}
	if c.outputNode == "" {
		c.outputNode = "9"
	}
	if _, ok := workflow[c.promptNode]; !ok {
		return nil, fmt.Errorf("workflow has no prompt node %q", c.promptNode)
	}
	return c, nil
}

// GenerateImage runs the workflow with prompt as the positive text and
// returns the first image the output node produced. Every call registers
// its own client id, since the server keeps one socket per id.
func (c *Client) GenerateImage(ctx context.Context, prompt string) ([]byte, error) {
	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	clientID := uuid.NewString()
	conn, err := c.listen(ctx, clientID)
	if err != nil {
		return nil, err
	}
	defer conn.Close()

	promptID, err := c.queue(ctx, prompt, clientID)
	if err != nil {
		return nil, err
	}
	logger.DebugCF("comfyui", "Workflow queued", map[string]any{"prompt_id": promptID})

	if err := c.waitFor(ctx, conn, promptID); err != nil {
		return nil, err
	}
	conn.Close()

	img, err := c.outputImage(ctx, promptID)
	if err != nil {
		return nil, err
	}
	return c.view(ctx, img)
}

func (c *Client) listen(ctx context.Context, clientID string) (*websocket.Conn, error) {
	u := *c.base
	u.Scheme = "ws"
	if c.base.Scheme == "https" {
		u.Scheme = "wss"
	}
	u.Path += "/ws"
	u.RawQuery = url.Values{"clientId": {clientID}}.Encode()

	conn, resp, err := c.dialer.DialContext(ctx, u.String(), nil)
	if err != nil {
		if resp != nil {
			return nil, providers.MapStatus(backendName, resp.StatusCode, "websocket handshake")
		}
		return nil, providers.MapConnectionError(backendName, err)
	}
	return conn, nil
}

func (c *Client) queue(ctx context.Context, prompt, clientID string) (string, error) {
	workflow := c.withPrompt(prompt)
	body, err := json.Marshal(map[string]any{"prompt": workflow, "client_id": clientID})
	if err != nil {
		return "", fmt.Errorf("marshal workflow: %w", err)
	}

	var out queueResponse
	if err := c.do(ctx, http.MethodPost, "/prompt", nil, body, &out); err != nil {
		return "", err
	}
	if out.PromptID == "" {
		return "", fmt.Errorf("%s: %w: no prompt id", backendName, providers.ErrEmptyResponse)
	}
	return out.PromptID, nil
}

// withPrompt copies the workflow with the prompt node's text replaced.
func (c *Client) withPrompt(prompt string) map[string]map[string]any {
	out := make(map[string]map[string]any, len(c.workflow))
	for id, node := range c.workflow {
		out[id] = node
	}
	node := make(map[string]any, len(c.workflow[c.promptNode]))
	for k, v := range c.workflow[c.promptNode] {
		node[k] = v
	}
	inputs := map[string]any{}
	if in, ok := node["inputs"].(map[string]any); ok {
		for k, v := range in {
			inputs[k] = v
		}
	}
	inputs["text"] = prompt
	node["inputs"] = inputs
	out[c.promptNode] = node
	return out
}

// waitFor reads progress events until the server reports that execution
// of promptID finished (an executing event with a null node).
func (c *Client) waitFor(ctx context.Context, conn *websocket.Conn, promptID string) error {
	stop := make(chan struct{})
	defer close(stop)
	go func() {
		select {
		case <-ctx.Done():
			conn.Close()
		case <-stop:
		}
	}()

	for {
		kind, data, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() != nil {
				return fmt.Errorf("%s: wait for prompt %s: %w", backendName, promptID, ctx.Err())
			}
			return providers.MapConnectionError(backendName, fmt.Errorf("read progress: %w", err))
		}
		// Binary frames carry latent previews.
		if kind != websocket.TextMessage {
			continue
		}
		var ev event
		if err := json.Unmarshal(data, &ev); err != nil {
			continue
		}
		switch ev.Type {
		case "executing":
			if ev.Data.Node == nil && ev.Data.PromptID == promptID {
				return nil
			}
		case "execution_error":
			if ev.Data.PromptID == promptID {
				return fmt.Errorf("%s: %w: execution error: %s", backendName, providers.ErrBackend, data)
			}
		}
	}
}

func (c *Client) outputImage(ctx context.Context, promptID string) (outputImage, error) {
	var history map[string]historyEntry
	if err := c.do(ctx, http.MethodGet, "/history/"+url.PathEscape(promptID), nil, nil, &history); err != nil {
		return outputImage{}, err
	}
	entry, ok := history[promptID]
	if !ok {
		return outputImage{}, fmt.Errorf("%s: %w: prompt %s missing from history", backendName, providers.ErrEmptyResponse, promptID)
	}
	if out, ok := entry.Outputs[c.outputNode]; ok && len(out.Images) > 0 {
		return out.Images[0], nil
	}
	// Fall back to any node with images, in node id order.
	ids := make([]string, 0, len(entry.Outputs))
	for id := range entry.Outputs {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	for _, id := range ids {
		if imgs := entry.Outputs[id].Images; len(imgs) > 0 {
			return imgs[0], nil
		}
	}
	return outputImage{}, fmt.Errorf("%s: %w: no images in outputs", backendName, providers.ErrEmptyResponse)
}

func (c *Client) view(ctx context.Context, img outputImage) ([]byte, error) {
	q := url.Values{"filename": {img.Filename}, "subfolder": {img.Subfolder}, "type": {img.Type}}
	var data []byte
	if err := c.do(ctx, http.MethodGet, "/view", q, nil, &data); err != nil {
		return nil, err
	}
	return data, nil
}

// do performs one API call. A *[]byte out receives the raw body; anything
// else is JSON-decoded.
func (c *Client) do(ctx context.Context, method, path string, query url.Values, body []byte, out any) error {
	u := *c.base
	u.Path += path
	u.RawQuery = query.Encode()

	var rdr io.Reader
	if body != nil {
		rdr = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, u.String(), rdr)
	if err != nil {
		return fmt.Errorf("%s: %w: %w", backendName, providers.ErrBackend, err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return providers.MapConnectionError(backendName, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return providers.MapConnectionError(backendName, err)
	}
	if err := providers.MapStatus(backendName, resp.StatusCode, method+" "+path+": "+string(raw)); err != nil {
		return err
	}
	if b, ok := out.(*[]byte); ok {
		*b = raw
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("%s: %w: decode %s: %w", backendName, providers.ErrBackend, path, err)
	}
	return nil
}
