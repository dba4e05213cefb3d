// Package mcpserver provides an MCP (Model Context Protocol) server that
// exposes decision record tools for LLM integration via stdio transport.
package mcpserver

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/starford/decisionrecords/internal/index"
	"github.com/starford/decisionrecords/internal/models"
	"github.com/starford/decisionrecords/internal/recordservice"
	"github.com/starford/decisionrecords/internal/storage"
)

const contractURI = "decisionrecords://record-format"

// Server wraps the MCP server with decision record tools.
type Server struct {
	mcp     *server.MCPServer
	records *recordservice.Service
	store   storage.Provider
	db      *index.DB
	logger  *slog.Logger
}

// New creates a new MCP server with all tools registered. The index is
// resynchronised after every mutating tool call.
func New(records *recordservice.Service, store storage.Provider, db *index.DB, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	s := &Server{records: records, store: store, db: db, logger: logger}

	s.mcp = server.NewMCPServer(
		"decisionrecords",
		"1.0.0",
		server.WithToolCapabilities(false),
		server.WithResourceCapabilities(false, false),
	)

	ids := func(name, desc string) mcp.ToolOption {
		return mcp.WithArray(name, mcp.Required(), mcp.Description(desc), mcp.Items(map[string]any{"type": "integer"}))
	}
	optionalIDs := func(name, desc string) mcp.ToolOption {
		return mcp.WithArray(name, mcp.Description(desc), mcp.Items(map[string]any{"type": "integer"}))
	}
	target := func(desc string) mcp.ToolOption {
		return mcp.WithNumber("to", mcp.Required(), mcp.Description(desc))
	}

	s.mcp.AddTool(mcp.NewTool("list_records",
		mcp.WithDescription("List decision records with identifier, title and status."),
		mcp.WithString("status", mcp.Description("Optional status word filter, e.g. Approved")),
	), s.listRecords)

	s.mcp.AddTool(mcp.NewTool("read_record",
		mcp.WithDescription("Read the full text of a decision record."),
		mcp.WithNumber("id", mcp.Required(), mcp.Description("Record identifier")),
	), s.readRecord)

	s.mcp.AddTool(mcp.NewTool("search_records",
		mcp.WithDescription("Full-text search through record titles and content."),
		mcp.WithString("query", mcp.Required(), mcp.Description("Search query string")),
		mcp.WithNumber("limit", mcp.Description("Maximum number of results (default 20)")),
	), s.searchRecords)

	s.mcp.AddTool(mcp.NewTool("new_record",
		mcp.WithDescription("Create the next decision record from the workspace template and "+
			"optionally relate it to existing records. Read the record format contract first."),
		mcp.WithString("title", mcp.Required(), mcp.Description("Record title")),
		optionalIDs("supersedes", "Records the new one supersedes"),
		optionalIDs("deprecates", "Records the new one deprecates"),
		optionalIDs("amends", "Records the new one amends"),
		optionalIDs("links", "Records the new one links to"),
		mcp.WithBoolean("proposed", mcp.Description("Start as Proposed")),
		mcp.WithBoolean("approved", mcp.Description("Start as Approved")),
	), s.newRecord)

	s.mcp.AddTool(mcp.NewTool("supersede_record",
		mcp.WithDescription("Mark records as superseded by another record. Both sides get a relation line."),
		target("Identifier of the superseding (newer) record"),
		ids("from", "Identifiers of the superseded records"),
	), s.relate(models.RelationSupersedes))

	s.mcp.AddTool(mcp.NewTool("deprecate_record",
		mcp.WithDescription("Mark records as deprecated by another record. Both sides get a relation line."),
		target("Identifier of the deprecating (newer) record"),
		ids("from", "Identifiers of the deprecated records"),
	), s.relate(models.RelationDeprecates))

	s.mcp.AddTool(mcp.NewTool("amend_record",
		mcp.WithDescription("Mark records as amended by another record. Status words are kept."),
		target("Identifier of the amending (newer) record"),
		ids("from", "Identifiers of the amended records"),
	), s.relate(models.RelationAmends))

	s.mcp.AddTool(mcp.NewTool("link_records",
		mcp.WithDescription("Link records to another record, optionally with a reason."),
		target("Identifier of the record linked to"),
		ids("from", "Identifiers of the linking records"),
		mcp.WithString("reason", mcp.Description("Optional reason written after the link")),
	), s.relate(models.RelationLinks))

	s.mcp.AddTool(mcp.NewTool("approve_record",
		mcp.WithDescription("Set the status of records to Approved."),
		ids("ids", "Record identifiers"),
	), s.setStatus(models.StatusApproved))

	s.mcp.AddTool(mcp.NewTool("propose_record",
		mcp.WithDescription("Set the status of records to Proposed."),
		ids("ids", "Record identifiers"),
	), s.setStatus(models.StatusProposed))

	s.mcp.AddTool(mcp.NewTool("check_records",
		mcp.WithDescription("List one-sided relations, relations to missing records, duplicate identifiers "+
			"and records without a status section."),
	), s.checkRecords)

	s.mcp.AddTool(mcp.NewTool("get_record_contract",
		mcp.WithDescription("Returns the decision record format contract."),
	), s.getRecordContract)

	s.mcp.AddResource(
		mcp.NewResource(contractURI, "Record Format Contract",
			mcp.WithResourceDescription("How decision records and their relation lines are written."),
			mcp.WithMIMEType("text/markdown"),
		),
		s.readContractResource,
	)

	return s
}

// ServeStdio starts the MCP server on stdin/stdout.
func (s *Server) ServeStdio() error {
	return server.ServeStdio(s.mcp)
}

// MCPServer returns the underlying server for testing.
func (s *Server) MCPServer() *server.MCPServer {
	return s.mcp
}

func jsonResult(v any) (*mcp.CallToolResult, error) {
	out, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return mcp.NewToolResultText(string(out)), nil
}

func toolError(err error) *mcp.CallToolResult {
	return mcp.NewToolResultError(err.Error())
}

func (s *Server) resync() {
	if err := index.Sync(s.db, s.store, s.records.Phrases(), s.logger); err != nil {
		s.logger.Warn("mcp: resync failed", slog.String("error", err.Error()))
	}
}

func (s *Server) listRecords(_ context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	rows, err := s.db.ListRecords(req.GetString("status", ""))
	if err != nil {
		return toolError(err), nil
	}
	if rows == nil {
		rows = []index.RecordRow{}
	}
	return jsonResult(rows)
}

func (s *Server) readRecord(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, err := req.RequireInt("id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	d, err := s.records.Get(ctx, id)
	if err != nil {
		return toolError(err), nil
	}
	return mcp.NewToolResultText(d.Content), nil
}

func (s *Server) searchRecords(_ context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	query, err := req.RequireString("query")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	results, err := s.db.Search(query, req.GetInt("limit", 20))
	if err != nil {
		return toolError(err), nil
	}
	if results == nil {
		results = []index.SearchResult{}
	}
	return jsonResult(results)
}

func (s *Server) newRecord(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	title, err := req.RequireString("title")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	rec, err := s.records.New(ctx, recordservice.NewRequest{
		Title:      title,
		Supersedes: req.GetIntSlice("supersedes", nil),
		Deprecates: req.GetIntSlice("deprecates", nil),
		Amends:     req.GetIntSlice("amends", nil),
		Links:      req.GetIntSlice("links", nil),
		Proposed:   req.GetBool("proposed", false),
		Approved:   req.GetBool("approved", false),
	})
	if rec != nil {
		s.resync()
	}
	if err != nil {
		if rec != nil {
			return mcp.NewToolResultError(fmt.Sprintf("created %s but relating failed: %v", rec.Path, err)), nil
		}
		return toolError(err), nil
	}
	return jsonResult(rec)
}

func (s *Server) relate(kind models.RelationKind) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		to, err := req.RequireInt("to")
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		from, err := req.RequireIntSlice("from")
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		err = s.records.Linker().Relate(ctx, kind, to, from, req.GetString("reason", ""))
		s.resync()
		if err != nil {
			return toolError(err), nil
		}
		return mcp.NewToolResultText(fmt.Sprintf("%s: %v -> %d", kind, from, to)), nil
	}
}

func (s *Server) setStatus(status models.Status) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		ids, err := req.RequireIntSlice("ids")
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		err = s.records.SetStatus(ctx, status, ids...)
		s.resync()
		if err != nil {
			return toolError(err), nil
		}
		return mcp.NewToolResultText(fmt.Sprintf("%s: %v", status, ids)), nil
	}
}

func (s *Server) checkRecords(_ context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	issues, err := s.db.Check()
	if err != nil {
		return toolError(err), nil
	}
	if len(issues) == 0 {
		return mcp.NewToolResultText("no issues found"), nil
	}
	return jsonResult(issues)
}

func (s *Server) getRecordContract(_ context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return mcp.NewToolResultText(RecordFormatContract), nil
}

func (s *Server) readContractResource(_ context.Context, _ mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	return []mcp.ResourceContents{
		mcp.TextResourceContents{
			URI:      contractURI,
			MIMEType: "text/markdown",
			Text:     RecordFormatContract,
		},
	}, nil
}
