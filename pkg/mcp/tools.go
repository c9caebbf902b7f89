package mcp

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/fitdesk/enrollkit/internal/wizard"
	"github.com/fitdesk/enrollkit/pkg/schema"
)

// handleStart opens a wizard session from a registered definition.
func (s *EnrollServer) handleStart(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	name, err := req.RequireString("definition")
	if err != nil {
		return mcp.NewToolResultError("definition is required"), nil
	}
	def, ok := s.deps.Definitions[name]
	if !ok {
		return mcp.NewToolResultError(fmt.Sprintf("unknown definition %q", name)), nil
	}

	mode := schema.Mode(req.GetString("mode", string(schema.ModeCreate)))
	branchID := req.GetString("branch_id", "")
	recordID := req.GetString("record_id", "")
	if mode == schema.ModeEdit && recordID == "" {
		return mcp.NewToolResultError("record_id is required in edit mode"), nil
	}

	session, err := wizard.NewSession(wizard.SessionConfig{
		Definition: def,
		Mode:       mode,
		BranchID:   branchID,
		RecordID:   recordID,
		Uploader:   s.deps.Uploader,
		Submitter:  s.deps.Submitter,
		Fetcher:    s.deps.Fetcher,
		Store:      s.deps.Store,
		Logger:     s.logger,
	})
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to start wizard: %v", err)), nil
	}

	if mode == schema.ModeEdit {
		if err := session.Hydrate(ctx); err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("failed to hydrate record: %v", err)), nil
		}
	}

	s.registry.Add(session)
	return marshalResult(map[string]any{
		"wizard_id": session.ID(),
		"status":    session.Status(),
		"step":      stepInfo(session),
	})
}

// handleSet fills the current step and advances when validation passes.
func (s *EnrollServer) handleSet(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	session, result := s.sessionFromRequest(req)
	if result != nil {
		return result, nil
	}
	values := mcp.ParseStringMap(req, "values", nil)
	if values == nil {
		return mcp.NewToolResultError("values is required"), nil
	}

	stepResult, err := session.Next(ctx, values)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("step evaluation failed: %v", err)), nil
	}

	out := map[string]any{
		"advanced":  stepResult.Advanced,
		"index":     stepResult.Index,
		"step_id":   stepResult.StepID,
		"last_step": stepResult.LastStep,
	}
	if !stepResult.OK() {
		out["field_errors"] = stepResult.FieldErrors
	}
	if stepResult.Advanced || stepResult.OK() {
		out["step"] = stepInfo(session)
	}
	return marshalResult(out)
}

// handleBack moves one step backwards.
func (s *EnrollServer) handleBack(_ context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	session, result := s.sessionFromRequest(req)
	if result != nil {
		return result, nil
	}
	index := session.Back(context.Background())
	return marshalResult(map[string]any{
		"index": index,
		"step":  stepInfo(session),
	})
}

// handleStatus reports session progress and current draft contents.
func (s *EnrollServer) handleStatus(_ context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	session, result := s.sessionFromRequest(req)
	if result != nil {
		return result, nil
	}

	slots := map[string]any{}
	for _, key := range slotKeys(session) {
		st, ok := session.Slot(key)
		if !ok {
			continue
		}
		records := st.List()
		done := 0
		for _, r := range records {
			if r.Status == schema.AttachmentStatusDone {
				done++
			}
		}
		slots[key] = map[string]any{"total": len(records), "done": done}
	}

	return marshalResult(map[string]any{
		"wizard_id":         session.ID(),
		"status":            session.Status(),
		"mode":              session.Mode(),
		"index":             session.Index(),
		"step_count":        session.StepCount(),
		"step":              stepInfo(session),
		"draft":             session.Draft(),
		"uploads_in_flight": session.UploadsInFlight(),
		"slots":             slots,
	})
}

// handleSubmit finalizes the wizard.
func (s *EnrollServer) handleSubmit(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	session, result := s.sessionFromRequest(req)
	if result != nil {
		return result, nil
	}
	if session.UploadsInFlight() {
		return mcp.NewToolResultError("uploads still in flight; retry when they finish"), nil
	}

	response, err := session.Submit(ctx)
	if err != nil {
		// The session survives a failed submission for correction.
		return mcp.NewToolResultError(fmt.Sprintf("submission failed: %v", err)), nil
	}

	s.registry.Remove(session.ID())
	return marshalResult(map[string]any{
		"wizard_id": session.ID(),
		"status":    session.Status(),
		"response":  json.RawMessage(response),
	})
}

// handleClose abandons a session.
func (s *EnrollServer) handleClose(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	session, result := s.sessionFromRequest(req)
	if result != nil {
		return result, nil
	}
	if err := session.Close(ctx); err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to close wizard: %v", err)), nil
	}
	s.registry.Remove(session.ID())
	return marshalResult(map[string]any{
		"wizard_id": session.ID(),
		"status":    session.Status(),
	})
}

// sessionFromRequest resolves the wizard_id argument to a live session. The
// returned CallToolResult is non-nil when resolution failed.
func (s *EnrollServer) sessionFromRequest(req mcp.CallToolRequest) (*wizard.Session, *mcp.CallToolResult) {
	wizardID, err := req.RequireString("wizard_id")
	if err != nil {
		return nil, mcp.NewToolResultError("wizard_id is required")
	}
	session, err := s.registry.Get(wizardID)
	if err != nil {
		return nil, mcp.NewToolResultError(err.Error())
	}
	return session, nil
}

// stepInfo summarizes the active step for the agent.
func stepInfo(session *wizard.Session) map[string]any {
	step := session.Step()
	fields := make([]map[string]any, 0, len(step.Fields))
	for _, f := range step.Fields {
		info := map[string]any{"name": f.Name}
		if f.Required || f.RequiredIf != "" {
			info["required"] = true
		}
		if f.Format != schema.FormatNone {
			info["format"] = string(f.Format)
		}
		fields = append(fields, info)
	}
	return map[string]any{
		"index":      session.Index(),
		"step_count": session.StepCount(),
		"id":         step.ID,
		"title":      step.Title,
		"fields":     fields,
	}
}

// slotKeys lists the session's slot keys in definition order.
func slotKeys(session *wizard.Session) []string {
	def := session.Definition()
	keys := make([]string, 0, len(def.Slots))
	for _, slot := range def.Slots {
		keys = append(keys, slot.Key)
	}
	return keys
}

// marshalResult converts a value to a JSON text tool result.
func marshalResult(v any) (*mcp.CallToolResult, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to marshal result: %v", err)), nil
	}
	return mcp.NewToolResultJSON(json.RawMessage(data))
}
