package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	sdk "github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/nvandessel/drawloop/internal/constants"
	"github.com/nvandessel/drawloop/internal/driver"
	"github.com/nvandessel/drawloop/internal/pool"
	"github.com/nvandessel/drawloop/internal/ratelimit"
)

const statusResourceURI = "drawloop://run/status"

// registerTools registers all drawloop tools with the MCP server.
func (s *Server) registerTools() error {
	sdk.AddTool(s.server, &sdk.Tool{
		Name:        ratelimit.ToolConfigure,
		Description: "Start a new run: reset the pool to equal weights and clear the pick sequence",
	}, s.handleConfigure)

	sdk.AddTool(s.server, &sdk.Tool{
		Name:        ratelimit.ToolStep,
		Description: "Draw one item, redistribute its weight to the others and return the snapshot",
	}, s.handleStep)

	sdk.AddTool(s.server, &sdk.Tool{
		Name:        ratelimit.ToolStatus,
		Description: "Report the run state, current weights, pick counts and sequence",
	}, s.handleStatus)

	return nil
}

// registerResources exposes the run status as a readable resource.
func (s *Server) registerResources() error {
	s.server.AddResource(&sdk.Resource{
		URI:         statusResourceURI,
		Name:        "drawloop-run-status",
		Description: "Current state of the weighted draw run.",
		MIMEType:    "application/json",
	}, s.handleStatusResource)
	return nil
}

func (s *Server) handleConfigure(ctx context.Context, req *sdk.CallToolRequest, args ConfigureInput) (_ *sdk.CallToolResult, _ StatusOutput, retErr error) {
	start := time.Now()
	defer func() {
		s.auditTool(ratelimit.ToolConfigure, start, retErr, map[string]string{
			"pool_size":   fmt.Sprint(args.PoolSize),
			"total_steps": fmt.Sprint(args.TotalSteps),
			"seed":        fmt.Sprint(args.Seed),
		})
	}()

	if err := ratelimit.CheckLimit(s.toolLimiters, ratelimit.ToolConfigure); err != nil {
		return nil, StatusOutput{}, err
	}

	cfg := driver.Config{PoolSize: args.PoolSize, TotalSteps: args.TotalSteps}
	if cfg.PoolSize == 0 {
		cfg.PoolSize = constants.DefaultPoolSize
	}
	if cfg.TotalSteps == 0 {
		cfg.TotalSteps = constants.DefaultTotalSteps
	}
	if err := cfg.Validate(); err != nil {
		return nil, StatusOutput{}, err
	}
	if cfg.PoolSize > constants.MaxPoolSize || cfg.TotalSteps > constants.MaxTotalSteps {
		return nil, StatusOutput{}, fmt.Errorf("%w: at most %d items and %d steps",
			driver.ErrInvalidConfig, constants.MaxPoolSize, constants.MaxTotalSteps)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	// An explicit seed always restarts its random sequence.
	d := s.driver
	if args.Seed != 0 {
		d = s.newDriver(args.Seed)
	}
	if err := d.Configure(cfg); err != nil {
		return nil, StatusOutput{}, err
	}
	s.driver = d
	if args.Seed != 0 {
		s.seed = args.Seed
	}

	out := s.statusLocked()
	out.Message = fmt.Sprintf("Configured %d items for %d steps", cfg.PoolSize, cfg.TotalSteps)
	return nil, out, nil
}

func (s *Server) handleStep(ctx context.Context, req *sdk.CallToolRequest, args StepInput) (_ *sdk.CallToolResult, _ StepOutput, retErr error) {
	start := time.Now()
	defer func() {
		s.auditTool(ratelimit.ToolStep, start, retErr, nil)
	}()

	if err := ratelimit.CheckLimit(s.toolLimiters, ratelimit.ToolStep); err != nil {
		return nil, StepOutput{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.driver.Step(ctx)
	if err != nil {
		return nil, StepOutput{}, fmt.Errorf("%w; call %s to start a new run", err, ratelimit.ToolConfigure)
	}
	return nil, stepOutput(res), nil
}

func (s *Server) handleStatus(ctx context.Context, req *sdk.CallToolRequest, args StatusInput) (_ *sdk.CallToolResult, _ StatusOutput, retErr error) {
	start := time.Now()
	defer func() {
		s.auditTool(ratelimit.ToolStatus, start, retErr, nil)
	}()

	if err := ratelimit.CheckLimit(s.toolLimiters, ratelimit.ToolStatus); err != nil {
		return nil, StatusOutput{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	return nil, s.statusLocked(), nil
}

func (s *Server) handleStatusResource(ctx context.Context, req *sdk.ReadResourceRequest) (*sdk.ReadResourceResult, error) {
	s.mu.Lock()
	out := s.statusLocked()
	s.mu.Unlock()

	data, err := json.MarshalIndent(out, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to encode status: %w", err)
	}
	return &sdk.ReadResourceResult{
		Contents: []*sdk.ResourceContents{
			{
				URI:      statusResourceURI,
				MIMEType: "application/json",
				Text:     string(data),
			},
		},
	}, nil
}

// statusLocked snapshots the driver. Callers hold s.mu.
func (s *Server) statusLocked() StatusOutput {
	d := s.driver
	cfg := d.Config()
	out := StatusOutput{
		State:          d.State().String(),
		PoolSize:       cfg.PoolSize,
		TotalSteps:     cfg.TotalSteps,
		StepsCompleted: d.StepsCompleted(),
		Complete:       d.IsComplete(),
		Weights:        d.Weights(),
		PickCounts:     d.PickCounts(),
		Sequence:       d.Sequence(),
	}
	if out.Weights == nil {
		out.Weights = []float64{}
	}
	if out.PickCounts == nil {
		out.PickCounts = []int{}
	}
	if out.Sequence == nil {
		out.Sequence = []pool.Item{}
	}
	return out
}
