package mcp

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/felixgeelhaar/mcp-go"
)

// RegisterResources registers read-only MCP resources.
func RegisterResources(srv *mcp.Server, deps ToolDependencies) error {
	if srv == nil {
		return fmt.Errorf("server is required")
	}
	if deps.App == nil {
		return fmt.Errorf("app is required")
	}
	h := &handlers{app: deps.App}

	srv.Resource("mylife://entitlements/current").
		Name("Current entitlement").
		Description("The verified entitlement of this installation").
		MimeType("application/json").
		Handler(func(ctx context.Context, uri string, _ map[string]string) (*mcp.ResourceContent, error) {
			out, err := h.entitlementsCurrent(ctx, struct{}{})
			if err != nil {
				return nil, err
			}
			return jsonResource(uri, out)
		})

	srv.Resource("mylife://access/jobs").
		Name("Access job counts").
		Description("Number of provisioning jobs per status").
		MimeType("application/json").
		Handler(func(ctx context.Context, uri string, _ map[string]string) (*mcp.ResourceContent, error) {
			out, err := h.accessJobs(ctx, jobsInput{})
			if err != nil {
				return nil, err
			}
			return jsonResource(uri, out)
		})

	srv.Resource("mylife://access/alerts").
		Name("Access alerts").
		Description("Provisioning jobs that exhausted their retries").
		MimeType("application/json").
		Handler(func(ctx context.Context, uri string, _ map[string]string) (*mcp.ResourceContent, error) {
			out, err := h.accessJobs(ctx, jobsInput{Status: "alert", Limit: 100})
			if err != nil {
				return nil, err
			}
			return jsonResource(uri, out)
		})

	return nil
}

func jsonResource(uri string, v any) (*mcp.ResourceContent, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return &mcp.ResourceContent{
		URI:      uri,
		MimeType: "application/json",
		Text:     string(data),
	}, nil
}
