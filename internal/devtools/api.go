package devtools

import (
	"context"
	"encoding/json"
	"fmt"
)

// TargetInfo describes one debuggable target (tab, iframe, worker).
type TargetInfo struct {
	TargetID string `json:"targetId"`
	Type     string `json:"type"`
	Title    string `json:"title"`
	URL      string `json:"url"`
	Attached bool   `json:"attached"`
}

// Frame is one node of a tab's frame tree.
type Frame struct {
	ID       string `json:"id"`
	ParentID string `json:"parentId,omitempty"`
	URL      string `json:"url"`
}

type frameTreeNode struct {
	Frame       Frame           `json:"frame"`
	ChildFrames []frameTreeNode `json:"childFrames,omitempty"`
}

// GetTargets lists all targets known to the browser.
func (c *Client) GetTargets(ctx context.Context) ([]TargetInfo, error) {
	var out struct {
		TargetInfos []TargetInfo `json:"targetInfos"`
	}
	if err := c.Call(ctx, "", "Target.getTargets", nil, &out); err != nil {
		return nil, err
	}
	return out.TargetInfos, nil
}

// AttachToTarget opens a flattened protocol session to one target and
// returns its session id.
func (c *Client) AttachToTarget(ctx context.Context, targetID string) (string, error) {
	params := map[string]any{"targetId": targetID, "flatten": true}
	var out struct {
		SessionID string `json:"sessionId"`
	}
	if err := c.Call(ctx, "", "Target.attachToTarget", params, &out); err != nil {
		return "", err
	}
	return out.SessionID, nil
}

// EnablePage turns on Page-domain notifications for a session. Must be
// called once per session before frame-tree or reload commands.
func (c *Client) EnablePage(ctx context.Context, sessionID string) error {
	return c.Call(ctx, sessionID, "Page.enable", nil, nil)
}

// FrameTree returns the tab's frames flattened into a single slice,
// main frame first.
func (c *Client) FrameTree(ctx context.Context, sessionID string) ([]Frame, error) {
	var out struct {
		FrameTree frameTreeNode `json:"frameTree"`
	}
	if err := c.Call(ctx, sessionID, "Page.getFrameTree", nil, &out); err != nil {
		return nil, err
	}

	var frames []Frame
	var walk func(node frameTreeNode)
	walk = func(node frameTreeNode) {
		frames = append(frames, node.Frame)
		for _, child := range node.ChildFrames {
			walk(child)
		}
	}
	walk(out.FrameTree)
	return frames, nil
}

// CreateIsolatedWorld creates a private execution context in the given
// frame and returns its context id. Evaluations in that world see the
// frame's DOM but not its scripts.
func (c *Client) CreateIsolatedWorld(ctx context.Context, sessionID, frameID, worldName string) (int64, error) {
	params := map[string]any{"frameId": frameID, "worldName": worldName}
	var out struct {
		ExecutionContextID int64 `json:"executionContextId"`
	}
	if err := c.Call(ctx, sessionID, "Page.createIsolatedWorld", params, &out); err != nil {
		return 0, err
	}
	return out.ExecutionContextID, nil
}

// Evaluate runs an expression in a session, optionally inside a
// specific execution context, and unmarshals its by-value result into
// out. A thrown exception comes back as an error, never a panic.
func (c *Client) Evaluate(ctx context.Context, sessionID string, contextID int64, expr string, out any) error {
	params := map[string]any{
		"expression":    expr,
		"returnByValue": true,
		"awaitPromise":  true,
	}
	if contextID != 0 {
		params["contextId"] = contextID
	}

	var result struct {
		Result struct {
			Type  string          `json:"type"`
			Value json.RawMessage `json:"value,omitempty"`
		} `json:"result"`
		ExceptionDetails *struct {
			Text      string `json:"text"`
			Exception *struct {
				Description string `json:"description"`
			} `json:"exception,omitempty"`
		} `json:"exceptionDetails,omitempty"`
	}

	if err := c.Call(ctx, sessionID, "Runtime.evaluate", params, &result); err != nil {
		return err
	}
	if ed := result.ExceptionDetails; ed != nil {
		detail := ed.Text
		if ed.Exception != nil && ed.Exception.Description != "" {
			detail = ed.Exception.Description
		}
		return fmt.Errorf("evaluate: %s", detail)
	}

	if out != nil && result.Result.Value != nil {
		if err := json.Unmarshal(result.Result.Value, out); err != nil {
			return fmt.Errorf("unmarshal evaluate result: %w", err)
		}
	}
	return nil
}

// Reload performs a hard reload of the session's page.
func (c *Client) Reload(ctx context.Context, sessionID string) error {
	params := map[string]any{"ignoreCache": true}
	return c.Call(ctx, sessionID, "Page.reload", params, nil)
}

// ActivateTarget brings a target's tab to the foreground.
func (c *Client) ActivateTarget(ctx context.Context, targetID string) error {
	return c.Call(ctx, "", "Target.activateTarget", map[string]any{"targetId": targetID}, nil)
}
