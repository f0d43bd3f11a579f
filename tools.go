package main

// tools.go: MCP tool registration wiring each tool name to its handler.

import (
	"context"
	"fmt"
	"strings"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/sanjit/coq-serapy/internal/driver"
)

// Tool argument types.

type stmtArg struct {
	Stmt string `json:"stmt" jsonschema:"one Coq/Rocq sentence to run"`
}

type termArg struct {
	Term string `json:"term" jsonschema:"a term in Coq surface syntax, as accepted by Check"`
}

type nameArg struct {
	Name string `json:"name" jsonschema:"fully qualified identifier"`
}

type patternArg struct {
	Pattern string `json:"pattern" jsonschema:"a Search pattern"`
}

type kArg struct {
	K int `json:"k" jsonschema:"number of premises to request from the hammer"`
}

// registerTools registers all MCP tools on the server.
func registerTools(server *mcp.Server, s *driver.Session) {
	mcp.AddTool(server, &mcp.Tool{
		Name:        "coq_run_stmt",
		Description: "Run one Coq/Rocq sentence against the current proof session.",
	}, func(ctx context.Context, req *mcp.CallToolRequest, args stmtArg) (*mcp.CallToolResult, any, error) {
		if err := s.RunStmt(args.Stmt); err != nil {
			return errResult(err), nil, nil
		}
		return textResult(renderProofContext(s.ProofContext())), nil, nil
	})

	mcp.AddTool(server, &mcp.Tool{
		Name:        "coq_cancel_last",
		Description: "Cancel the last accepted sentence and roll the proof state back.",
	}, func(ctx context.Context, req *mcp.CallToolRequest, args struct{}) (*mcp.CallToolResult, any, error) {
		if err := s.CancelLast(); err != nil {
			return errResult(err), nil, nil
		}
		return textResult(renderProofContext(s.ProofContext())), nil, nil
	})

	mcp.AddTool(server, &mcp.Tool{
		Name:        "coq_goals",
		Description: "Show the current proof context (focused and background goals).",
	}, func(ctx context.Context, req *mcp.CallToolRequest, args struct{}) (*mcp.CallToolResult, any, error) {
		return textResult(renderProofContext(s.ProofContext())), nil, nil
	})

	mcp.AddTool(server, &mcp.Tool{
		Name:        "coq_check",
		Description: "Pretty-print the type of a term.",
	}, func(ctx context.Context, req *mcp.CallToolRequest, args termArg) (*mcp.CallToolResult, any, error) {
		pretty, err := s.Check(args.Term)
		if err != nil {
			return errResult(err), nil, nil
		}
		return textResult(pretty), nil, nil
	})

	mcp.AddTool(server, &mcp.Tool{
		Name:        "coq_locate",
		Description: "Resolve a qualified identifier to its canonical name.",
	}, func(ctx context.Context, req *mcp.CallToolRequest, args nameArg) (*mcp.CallToolResult, any, error) {
		resolved, err := s.Locate(args.Name)
		if err != nil {
			return errResult(err), nil, nil
		}
		return textResult(resolved), nil, nil
	})

	mcp.AddTool(server, &mcp.Tool{
		Name:        "coq_definition",
		Description: "Show the raw definition body of an identifier.",
	}, func(ctx context.Context, req *mcp.CallToolRequest, args nameArg) (*mcp.CallToolResult, any, error) {
		def, err := s.Definition(args.Name)
		if err != nil {
			return errResult(err), nil, nil
		}
		return textResult(def), nil, nil
	})

	mcp.AddTool(server, &mcp.Tool{
		Name:        "coq_assumptions",
		Description: "List the axioms an identifier's proof term depends on.",
	}, func(ctx context.Context, req *mcp.CallToolRequest, args nameArg) (*mcp.CallToolResult, any, error) {
		assumptions, err := s.Assumptions(args.Name)
		if err != nil {
			return errResult(err), nil, nil
		}
		return textResult(assumptions), nil, nil
	})

	mcp.AddTool(server, &mcp.Tool{
		Name:        "coq_search",
		Description: "Search for lemmas matching a pattern.",
	}, func(ctx context.Context, req *mcp.CallToolRequest, args patternArg) (*mcp.CallToolResult, any, error) {
		results, err := s.Search(args.Pattern)
		if err != nil {
			return errResult(err), nil, nil
		}
		return textResult(strings.Join(results, "\n")), nil, nil
	})

	mcp.AddTool(server, &mcp.Tool{
		Name:        "coq_env",
		Description: "Enumerate the constants and inductives currently in scope.",
	}, func(ctx context.Context, req *mcp.CallToolRequest, args struct{}) (*mcp.CallToolResult, any, error) {
		entries, err := s.Env()
		if err != nil {
			return errResult(err), nil, nil
		}
		var sb strings.Builder
		for _, e := range entries {
			fmt.Fprintf(&sb, "%s (%s) : %s\n", e.Qualid, e.ShortIdent, e.Type)
		}
		return textResult(sb.String()), nil, nil
	})

	mcp.AddTool(server, &mcp.Tool{
		Name:        "coq_hammer_premises",
		Description: "Ask the hammer plugin for candidate premises for the focused goal.",
	}, func(ctx context.Context, req *mcp.CallToolRequest, args kArg) (*mcp.CallToolResult, any, error) {
		premises, err := s.HammerPremises(args.K)
		if err != nil {
			return errResult(err), nil, nil
		}
		return textResult(strings.Join(premises, "\n")), nil, nil
	})

	mcp.AddTool(server, &mcp.Tool{
		Name:        "coq_reset",
		Description: "Kill and restart the prover subprocess, discarding all proof progress.",
	}, func(ctx context.Context, req *mcp.CallToolRequest, args struct{}) (*mcp.CallToolResult, any, error) {
		if err := s.Reset(); err != nil {
			return errResult(err), nil, nil
		}
		return textResult("Reset."), nil, nil
	})
}

func errResult(err error) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		IsError: true,
		Content: []mcp.Content{&mcp.TextContent{Text: err.Error()}},
	}
}

func textResult(text string) *mcp.CallToolResult {
	return &mcp.CallToolResult{Content: []mcp.Content{&mcp.TextContent{Text: text}}}
}

// renderProofContext is the format layer for the MCP tool surface. The
// proof context carries fg/bg/shelved/given_up buckets, so the header
// reports all four.
func renderProofContext(pc *driver.ProofContext) string {
	if pc == nil || len(pc.AllGoals()) == 0 {
		return "No goals."
	}
	var sb strings.Builder
	fmt.Fprintf(&sb, "=== Proof Goals: %d ===\n", len(pc.AllGoals()))
	for i, g := range pc.Fg {
		fmt.Fprintf(&sb, "Goal %d of %d:\n", i+1, len(pc.Fg))
		for _, h := range g.Hypotheses {
			fmt.Fprintf(&sb, "  %s : %s\n", strings.Join(h.Names, " "), h.Type.Pretty)
		}
		fmt.Fprintf(&sb, "  --------------------\n  %s\n", g.Goal.Pretty)
	}
	if n := len(pc.Bg); n > 0 {
		fmt.Fprintf(&sb, "(%d background goal(s))\n", n)
	}
	if n := len(pc.Shelved); n > 0 {
		fmt.Fprintf(&sb, "(%d shelved goal(s))\n", n)
	}
	if n := len(pc.GivenUp); n > 0 {
		fmt.Fprintf(&sb, "(%d given-up goal(s))\n", n)
	}
	return sb.String()
}
