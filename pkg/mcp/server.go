package mcp

import (
	"context"
	"log/slog"
	"os"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/fitdesk/enrollkit/internal/staging"
	"github.com/fitdesk/enrollkit/internal/validation"
	"github.com/fitdesk/enrollkit/internal/wizard"
	"github.com/fitdesk/enrollkit/pkg/schema"
)

// EnrollServerDeps holds the dependencies for creating an EnrollServer.
// Definitions maps wizard definition names to their configurations; they are
// validated at server construction.
type EnrollServerDeps struct {
	Definitions map[string]*schema.WizardDefinition
	Uploader    staging.Uploader
	Submitter   wizard.Submitter
	Fetcher     wizard.RecordFetcher
	Store       wizard.DraftStore
	Logger      *slog.Logger
}

// EnrollServer wraps an MCP server with enrollment wizard tool handlers, so
// an agent can drive a full enrollment conversationally: start a wizard,
// fill steps, inspect blocking errors, and submit.
type EnrollServer struct {
	deps      EnrollServerDeps
	registry  *SessionRegistry
	logger    *slog.Logger
	mcpServer *server.MCPServer
}

// NewEnrollServer validates all registered definitions and creates a server
// with the 6 enrollment tools registered.
func NewEnrollServer(deps EnrollServerDeps) (*EnrollServer, error) {
	logger := deps.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo}))
	}

	validator, err := validation.NewValidator()
	if err != nil {
		return nil, err
	}
	for name, def := range deps.Definitions {
		if err := validator.ValidateDefinition(def); err != nil {
			return nil, schema.NewErrorf(schema.ErrCodeValidation,
				"definition %q invalid", name).WithCause(err)
		}
	}

	s := &EnrollServer{
		deps:     deps,
		registry: NewSessionRegistry(),
		logger:   logger,
	}

	mcpSrv := server.NewMCPServer(
		"enrollkit",
		"1.0.0",
		server.WithToolCapabilities(false),
		server.WithRecovery(),
		server.WithInstructions("Enrollkit drives multi-step enrollment wizards. Use enroll.start to open a wizard, enroll.set to fill and validate the current step, enroll.back to revisit an earlier step, enroll.status to inspect progress and field errors, enroll.submit to finalize, and enroll.close to abandon."),
	)

	mcpSrv.AddTools(s.tools()...)
	s.mcpServer = mcpSrv
	return s, nil
}

// Serve starts the stdio transport and blocks until ctx is cancelled or stdin closes.
func (s *EnrollServer) Serve(ctx context.Context) error {
	stdio := server.NewStdioServer(s.mcpServer)
	return stdio.Listen(ctx, os.Stdin, os.Stdout)
}

// MCPServer returns the underlying MCPServer for testing or custom transports.
func (s *EnrollServer) MCPServer() *server.MCPServer {
	return s.mcpServer
}

// Sessions returns the live session registry.
func (s *EnrollServer) Sessions() *SessionRegistry {
	return s.registry
}

func (s *EnrollServer) tools() []server.ServerTool {
	return []server.ServerTool{
		{Tool: startTool(), Handler: s.handleStart},
		{Tool: setTool(), Handler: s.handleSet},
		{Tool: backTool(), Handler: s.handleBack},
		{Tool: statusTool(), Handler: s.handleStatus},
		{Tool: submitTool(), Handler: s.handleSubmit},
		{Tool: closeTool(), Handler: s.handleClose},
	}
}

// --- Tool definitions ---

func startTool() mcp.Tool {
	return mcp.NewTool("enroll.start",
		mcp.WithDescription("Open a new enrollment wizard session"),
		mcp.WithString("definition", mcp.Required(), mcp.Description("Name of the registered wizard definition")),
		mcp.WithString("mode",
			mcp.Enum("create", "edit"),
			mcp.Description("create a new record or edit an existing one (default: create)"),
		),
		mcp.WithString("branch_id", mcp.Description("Branch the record belongs to")),
		mcp.WithString("record_id", mcp.Description("Record to edit (required in edit mode)")),
	)
}

func setTool() mcp.Tool {
	return mcp.NewTool("enroll.set",
		mcp.WithDescription("Fill the current step's fields and advance if they validate"),
		mcp.WithString("wizard_id", mcp.Required(), mcp.Description("ID of the wizard session")),
		mcp.WithObject("values", mcp.Required(), mcp.Description("Field values for the current step")),
	)
}

func backTool() mcp.Tool {
	return mcp.NewTool("enroll.back",
		mcp.WithDescription("Return to the previous step without losing entered values"),
		mcp.WithString("wizard_id", mcp.Required(), mcp.Description("ID of the wizard session")),
	)
}

func statusTool() mcp.Tool {
	return mcp.NewTool("enroll.status",
		mcp.WithDescription("Get wizard progress, current step fields, and draft contents"),
		mcp.WithString("wizard_id", mcp.Required(), mcp.Description("ID of the wizard session")),
	)
}

func submitTool() mcp.Tool {
	return mcp.NewTool("enroll.submit",
		mcp.WithDescription("Assemble and submit the completed wizard"),
		mcp.WithString("wizard_id", mcp.Required(), mcp.Description("ID of the wizard session")),
	)
}

func closeTool() mcp.Tool {
	return mcp.NewTool("enroll.close",
		mcp.WithDescription("Abandon a wizard session and discard its local state"),
		mcp.WithString("wizard_id", mcp.Required(), mcp.Description("ID of the wizard session")),
	)
}
