package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/google/jsonschema-go/jsonschema"
	"github.com/modelcontextprotocol/go-sdk/mcp"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/ragd/internal/logging"
)

// Tool names.
const (
	ToolSearchNote = "search_note"
	ToolAddNote    = "add_note"
	ToolDeleteNote = "delete_note"
)

type searchNoteInput struct {
	Query string `json:"query" jsonschema:"Text to search notes for"`
	Limit int    `json:"limit,omitempty" jsonschema:"Maximum number of notes to return. Omit for the server default"`
}

type noteResult struct {
	ID         string         `json:"id"`
	Content    string         `json:"content"`
	Embedding  []float32      `json:"embedding"`
	Metadata   map[string]any `json:"metadata"`
	Similarity float64        `json:"similarity"`
}

type searchNoteOutput struct {
	Notes []noteResult `json:"notes"`
	Count int          `json:"count"`
}

type addNoteInput struct {
	Content  string         `json:"content" jsonschema:"Note text to store"`
	Metadata map[string]any `json:"metadata,omitempty" jsonschema:"Extra metadata. Keys override the generated defaults"`
}

type addNoteOutput struct {
	ID       string         `json:"id"`
	Content  string         `json:"content"`
	Metadata map[string]any `json:"metadata"`
}

type deleteNoteInput struct {
	NoteID any `json:"note_id"`
}

type deleteNoteOutput struct {
	Deleted bool `json:"deleted"`
}

func (s *Server) registerTools() error {
	searchIn, err := jsonschema.For[searchNoteInput](nil)
	if err != nil {
		return fmt.Errorf("search_note input schema: %w", err)
	}
	searchOut, err := searchOutputSchema()
	if err != nil {
		return err
	}
	addIn, err := addInputSchema()
	if err != nil {
		return err
	}
	deleteIn, err := deleteInputSchema()
	if err != nil {
		return err
	}

	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:         ToolSearchNote,
		Description:  "Search stored notes by semantic similarity to a query. Returns the closest notes first.",
		InputSchema:  searchIn,
		OutputSchema: searchOut,
	}, instrumented(s, ToolSearchNote, s.searchNote))

	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        ToolAddNote,
		Description: "Store a note. It is embedded and saved with generated metadata merged with any metadata supplied.",
		InputSchema: addIn,
	}, instrumented(s, ToolAddNote, s.addNote))

	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        ToolDeleteNote,
		Description: "Delete a note by id. Reports whether a note was removed.",
		InputSchema: deleteIn,
	}, instrumented(s, ToolDeleteNote, s.deleteNote))

	return nil
}

// instrumented tags ctx with the tool name and records metrics around h.
func instrumented[In, Out any](s *Server, name string, h mcp.ToolHandlerFor[In, Out]) mcp.ToolHandlerFor[In, Out] {
	return func(ctx context.Context, req *mcp.CallToolRequest, in In) (*mcp.CallToolResult, Out, error) {
		start := time.Now()
		ctx = logging.WithTool(ctx, name)
		s.metrics.IncrementActive(ctx, name)

		res, out, err := h(ctx, req, in)

		s.metrics.DecrementActive(ctx, name)
		s.metrics.RecordInvocation(ctx, name, time.Since(start), err)
		if err != nil {
			s.logger.Warn("tool call failed",
				zap.String("tool", name),
				zap.String("reason", categorizeError(err)),
				zap.Error(err),
			)
		}
		return res, out, err
	}
}

func (s *Server) searchNote(ctx context.Context, _ *mcp.CallToolRequest, args searchNoteInput) (*mcp.CallToolResult, searchNoteOutput, error) {
	results, err := s.notes.Search(ctx, args.Query, args.Limit)
	if err != nil {
		return nil, searchNoteOutput{}, fmt.Errorf("search failed: %w", err)
	}

	out := searchNoteOutput{
		Notes: make([]noteResult, 0, len(results)),
		Count: len(results),
	}
	for _, r := range results {
		out.Notes = append(out.Notes, noteResult{
			ID:         r.ID,
			Content:    r.Content,
			Embedding:  r.Embedding,
			Metadata:   r.Metadata,
			Similarity: r.Similarity,
		})
	}

	text, err := json.Marshal(out.Notes)
	if err != nil {
		return nil, searchNoteOutput{}, fmt.Errorf("encoding results: %w", err)
	}
	return textResult(string(text)), out, nil
}

func (s *Server) addNote(ctx context.Context, _ *mcp.CallToolRequest, args addNoteInput) (*mcp.CallToolResult, addNoteOutput, error) {
	doc, err := s.notes.Add(ctx, args.Content, args.Metadata)
	if err != nil {
		return nil, addNoteOutput{}, fmt.Errorf("add failed: %w", err)
	}

	out := addNoteOutput{
		ID:       doc.ID,
		Content:  doc.Content,
		Metadata: doc.Metadata,
	}
	text, err := json.Marshal(out)
	if err != nil {
		return nil, addNoteOutput{}, fmt.Errorf("encoding note: %w", err)
	}
	return textResult(string(text)), out, nil
}

func (s *Server) deleteNote(ctx context.Context, _ *mcp.CallToolRequest, args deleteNoteInput) (*mcp.CallToolResult, deleteNoteOutput, error) {
	deleted, err := s.notes.Delete(ctx, args.NoteID)
	if err != nil {
		return nil, deleteNoteOutput{}, fmt.Errorf("delete failed: %w", err)
	}
	return textResult(strconv.FormatBool(deleted)), deleteNoteOutput{Deleted: deleted}, nil
}

func textResult(text string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{&mcp.TextContent{Text: text}},
	}
}

// searchOutputSchema infers the search_note output schema and widens
// notes[].embedding to allow null, which is how an undecodable stored
// vector is reported.
func searchOutputSchema() (*jsonschema.Schema, error) {
	schema, err := jsonschema.For[searchNoteOutput](nil)
	if err != nil {
		return nil, fmt.Errorf("search_note output schema: %w", err)
	}
	notes := schema.Properties["notes"]
	if notes == nil || notes.Items == nil || notes.Items.Properties == nil {
		return nil, errors.New("search_note output schema: notes items not inferred")
	}
	notes.Items.Properties["embedding"] = &jsonschema.Schema{
		Types:       []string{"null", "array"},
		Items:       &jsonschema.Schema{Type: "number"},
		Description: "Stored vector, or null when it could not be decoded",
	}
	return schema, nil
}

// addInputSchema lets metadata be omitted, null or an object.
func addInputSchema() (*jsonschema.Schema, error) {
	schema, err := jsonschema.For[addNoteInput](nil)
	if err != nil {
		return nil, fmt.Errorf("add_note input schema: %w", err)
	}
	if schema.Properties == nil {
		return nil, errors.New("add_note input schema: properties not inferred")
	}
	metadata := schema.Properties["metadata"]
	if metadata == nil {
		metadata = &jsonschema.Schema{}
	}
	metadata.Type = ""
	metadata.Types = []string{"null", "object"}
	schema.Properties["metadata"] = metadata
	return schema, nil
}

// deleteInputSchema accepts note_id as a string or an integer.
func deleteInputSchema() (*jsonschema.Schema, error) {
	schema, err := jsonschema.For[deleteNoteInput](nil)
	if err != nil {
		return nil, fmt.Errorf("delete_note input schema: %w", err)
	}
	if schema.Properties == nil {
		schema.Properties = map[string]*jsonschema.Schema{}
	}
	schema.Properties["note_id"] = &jsonschema.Schema{
		Types:       []string{"string", "integer"},
		Description: "Id of the note to delete",
	}
	schema.Required = []string{"note_id"}
	return schema, nil
}
