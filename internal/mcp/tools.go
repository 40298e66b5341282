package mcp

import (
	"context"
	"time"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/claude/hevysync/internal/server"
	"github.com/claude/hevysync/internal/upload"
)

var toolSyncStatus = mcp.NewTool("sync_status",
	mcp.WithDescription("Report the stored watermark, the last sync pass and how many workouts are being retried or were abandoned."),
)

var toolListFailedSessions = mcp.NewTool("list_failed_sessions",
	mcp.WithDescription("List workouts whose upload failed, oldest first, with attempt counts and the last error."),
	mcp.WithString("status", mcp.Description("Which failures to list. Defaults to 'all'."), mcp.Enum("retrying", "abandoned", "all")),
)

var toolGetDelivery = mcp.NewTool("get_delivery",
	mcp.WithDescription("Look up the ledger entry for one Hevy workout by its ID."),
	mcp.WithString("workout_id", mcp.Required(), mcp.Description("Hevy workout ID")),
)

var toolTriggerSync = mcp.NewTool("trigger_sync",
	mcp.WithDescription("Queue a sync pass. Returns whether a new pass was queued; false means one is already waiting."),
)

type statusResult struct {
	Watermark *time.Time              `json:"watermark"`
	LastPass  *upload.PassRecord      `json:"last_pass"`
	Retrying  int                     `json:"retrying"`
	Abandoned int                     `json:"abandoned"`
	Scheduler *server.SchedulerStatus `json:"scheduler,omitempty"`
}

func (h *handlers) syncStatus(ctx context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	var res statusResult

	wm, ok, err := h.wm.Peek()
	if err != nil {
		h.log.Warn("mcp sync_status watermark", "error", err)
	} else if ok {
		res.Watermark = &wm
	}

	if res.LastPass, err = h.ledger.LastPass(ctx); err != nil {
		h.log.Error("mcp sync_status last pass", "error", err)
		return mcp.NewToolResultError("query failed: " + err.Error()), nil
	}
	pending, err := h.ledger.Pending(ctx)
	if err != nil {
		h.log.Error("mcp sync_status pending", "error", err)
		return mcp.NewToolResultError("query failed: " + err.Error()), nil
	}
	abandoned, err := h.ledger.Abandoned(ctx)
	if err != nil {
		h.log.Error("mcp sync_status abandoned", "error", err)
		return mcp.NewToolResultError("query failed: " + err.Error()), nil
	}
	res.Retrying, res.Abandoned = len(pending), len(abandoned)
	if h.sched != nil {
		st := h.sched.Status()
		res.Scheduler = &st
	}

	result, err := mcp.NewToolResultJSON(res)
	if err != nil {
		return mcp.NewToolResultError("serialization failed"), nil
	}
	return result, nil
}

func (h *handlers) listFailedSessions(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	which := req.GetString("status", "all")
	if which != "retrying" && which != "abandoned" && which != "all" {
		return mcp.NewToolResultError("status must be retrying, abandoned or all"), nil
	}

	ds, err := h.failed(ctx, which)
	if err != nil {
		h.log.Error("mcp list_failed_sessions", "error", err)
		return mcp.NewToolResultError("query failed: " + err.Error()), nil
	}

	result, err := mcp.NewToolResultJSON(ds)
	if err != nil {
		return mcp.NewToolResultError("serialization failed"), nil
	}
	return result, nil
}

func (h *handlers) failed(ctx context.Context, which string) ([]upload.Delivery, error) {
	ds := []upload.Delivery{}
	if which != "abandoned" {
		pending, err := h.ledger.Pending(ctx)
		if err != nil {
			return nil, err
		}
		ds = append(ds, pending...)
	}
	if which != "retrying" {
		abandoned, err := h.ledger.Abandoned(ctx)
		if err != nil {
			return nil, err
		}
		ds = append(ds, abandoned...)
	}
	return ds, nil
}

func (h *handlers) getDelivery(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, err := req.RequireString("workout_id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	d, err := h.ledger.Lookup(ctx, "hevy:"+id)
	if err != nil {
		h.log.Error("mcp get_delivery", "workout", id, "error", err)
		return mcp.NewToolResultError("query failed: " + err.Error()), nil
	}
	if d == nil {
		return mcp.NewToolResultText("workout " + id + " has no ledger entry; it was never attempted or predates the ledger"), nil
	}

	result, err := mcp.NewToolResultJSON(d)
	if err != nil {
		return mcp.NewToolResultError("serialization failed"), nil
	}
	return result, nil
}

func (h *handlers) triggerSync(_ context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	if h.sched == nil {
		return mcp.NewToolResultError("scheduler not running"), nil
	}
	queued := h.sched.Trigger()
	h.log.Info("sync triggered over mcp", "queued", queued)

	result, err := mcp.NewToolResultJSON(map[string]bool{"queued": queued})
	if err != nil {
		return mcp.NewToolResultError("serialization failed"), nil
	}
	return result, nil
}
