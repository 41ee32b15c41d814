// Package mcpserver provides an MCP (Model Context Protocol) server
// that exposes catalog tools for LLM integration via stdio transport.
package mcpserver

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/starford/capes/internal/apperr"
	"github.com/starford/capes/internal/heroservice"
	"github.com/starford/capes/internal/models"
	"github.com/starford/capes/internal/parser"
)

// Server wraps the MCP server with catalog tools.
type Server struct {
	mcp           *server.MCPServer
	svc           *heroservice.Service
	maxImageBytes int64
}

// New creates a new MCP server with all catalog tools registered.
func New(svc *heroservice.Service, maxImageBytes int64) *Server {
	if maxImageBytes <= 0 {
		maxImageBytes = 10 << 20
	}
	s := &Server{svc: svc, maxImageBytes: maxImageBytes}

	s.mcp = server.NewMCPServer(
		"Capes",
		"1.0.0",
		server.WithToolCapabilities(false),
		server.WithResourceCapabilities(false, false),
	)

	s.mcp.AddTool(mcp.NewTool("list_superheroes",
		mcp.WithDescription("List superheroes newest first, one page at a time."),
		mcp.WithNumber("page", mcp.Description("1-based page number (default 1)")),
		mcp.WithNumber("limit", mcp.Description("Page size (default 5)")),
	), s.listHeroes)

	s.mcp.AddTool(mcp.NewTool("get_superhero",
		mcp.WithDescription("Fetch one superhero record by id."),
		mcp.WithString("id", mcp.Required(), mcp.Description("Record id")),
	), s.getHero)

	s.mcp.AddTool(mcp.NewTool("create_superhero",
		mcp.WithDescription("Create a superhero record without images. "+
			"Read the record format via get_record_format or the capes://record-format resource first. "+
			"Attach images afterwards with attach_image."),
		mcp.WithString("nickname", mcp.Required()),
		mcp.WithString("real_name", mcp.Required()),
		mcp.WithString("origin_description", mcp.Required()),
		mcp.WithString("catch_phrase", mcp.Required()),
		mcp.WithString("superpowers", mcp.Description("Comma-separated list, e.g. \"flight, heat vision\"")),
	), s.createHero)

	s.mcp.AddTool(mcp.NewTool("update_superhero",
		mcp.WithDescription("Replace every descriptive field of a superhero. Images are kept."),
		mcp.WithString("id", mcp.Required()),
		mcp.WithString("nickname", mcp.Required()),
		mcp.WithString("real_name", mcp.Required()),
		mcp.WithString("origin_description", mcp.Required()),
		mcp.WithString("catch_phrase", mcp.Required()),
		mcp.WithString("superpowers", mcp.Description("Comma-separated list")),
	), s.updateHero)

	s.mcp.AddTool(mcp.NewTool("delete_superhero",
		mcp.WithDescription("Delete a superhero record. Its images stay in the media store."),
		mcp.WithString("id", mcp.Required()),
	), s.deleteHero)

	s.mcp.AddTool(mcp.NewTool("remove_superhero_image",
		mcp.WithDescription("Delete one image from the media store and from the record."),
		mcp.WithString("id", mcp.Required()),
		mcp.WithString("url", mcp.Required(), mcp.Description("Exact image URL as listed on the record")),
	), s.removeImage)

	s.mcp.AddTool(mcp.NewTool("attach_image",
		mcp.WithDescription("Download an image (http/https URL or base64 data URI) and append it to a superhero."),
		mcp.WithString("id", mcp.Required()),
		mcp.WithString("url", mcp.Required(), mcp.Description("http(s) URL or data:image/...;base64,... URI")),
		mcp.WithString("filename", mcp.Description("Optional file name hint")),
	), s.attachImage)

	s.mcp.AddTool(mcp.NewTool("get_record_format",
		mcp.WithDescription("Returns the superhero record format. Call this before creating or updating records."),
	), s.getRecordFormat)

	s.mcp.AddResource(
		mcp.NewResource("capes://record-format", "Superhero Record Format",
			mcp.WithResourceDescription("Fields, limits and conventions for superhero records."),
			mcp.WithMIMEType("text/markdown"),
		),
		s.readRecordFormatResource,
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

func jsonResult(v any) *mcp.CallToolResult {
	out, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return mcp.NewToolResultError(err.Error())
	}
	return mcp.NewToolResultText(string(out))
}

func errorResult(err error) *mcp.CallToolResult {
	if errors.Is(err, apperr.ErrNotFound) {
		return mcp.NewToolResultError("superhero not found")
	}
	return mcp.NewToolResultError(err.Error())
}

func fieldsFromRequest(req mcp.CallToolRequest) (models.Fields, error) {
	var f models.Fields
	var err error
	if f.Nickname, err = req.RequireString("nickname"); err != nil {
		return f, err
	}
	if f.RealName, err = req.RequireString("real_name"); err != nil {
		return f, err
	}
	if f.OriginDescription, err = req.RequireString("origin_description"); err != nil {
		return f, err
	}
	if f.CatchPhrase, err = req.RequireString("catch_phrase"); err != nil {
		return f, err
	}
	f.Superpowers = parser.SplitSuperpowers([]string{req.GetString("superpowers", "")})
	return f, nil
}

func (s *Server) listHeroes(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	page, err := s.svc.List(ctx, req.GetInt("page", 1), req.GetInt("limit", 0))
	if err != nil {
		return errorResult(err), nil
	}
	return jsonResult(page), nil
}

func (s *Server) getHero(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, err := req.RequireString("id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	hero, err := s.svc.Get(ctx, id)
	if err != nil {
		return errorResult(err), nil
	}
	return jsonResult(hero), nil
}

func (s *Server) createHero(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	fields, err := fieldsFromRequest(req)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	hero, err := s.svc.Create(ctx, heroservice.CreateInput{Fields: fields})
	if err != nil {
		return errorResult(err), nil
	}
	return jsonResult(hero), nil
}

func (s *Server) updateHero(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, err := req.RequireString("id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	fields, err := fieldsFromRequest(req)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	hero, err := s.svc.Update(ctx, heroservice.UpdateInput{ID: id, Fields: fields})
	if err != nil {
		return errorResult(err), nil
	}
	return jsonResult(hero), nil
}

func (s *Server) deleteHero(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, err := req.RequireString("id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if err := s.svc.Delete(ctx, id); err != nil {
		return errorResult(err), nil
	}
	return mcp.NewToolResultText(fmt.Sprintf("deleted: %s", id)), nil
}

func (s *Server) removeImage(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, err := req.RequireString("id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	url, err := req.RequireString("url")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	images, err := s.svc.RemoveImage(ctx, id, url)
	if err != nil {
		return errorResult(err), nil
	}
	return jsonResult(map[string]any{"id": id, "images": images}), nil
}

func (s *Server) getRecordFormat(_ context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return mcp.NewToolResultText(RecordFormat), nil
}

func (s *Server) readRecordFormatResource(_ context.Context, _ mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	return []mcp.ResourceContents{
		mcp.TextResourceContents{
			URI:      "capes://record-format",
			MIMEType: "text/markdown",
			Text:     RecordFormat,
		},
	}, nil
}
