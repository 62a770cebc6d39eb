package mcp

import (
	"context"
	"fmt"

	"github.com/felixgeelhaar/mcp-go"
)

// RegisterPrompts registers operator prompts.
func RegisterPrompts(srv *mcp.Server) error {
	if srv == nil {
		return fmt.Errorf("server is required")
	}

	srv.Prompt("access_triage").
		Description("Walk through provisioning jobs stuck in alert and decide which to requeue.").
		Handler(func(ctx context.Context, args map[string]string) (*mcp.PromptResult, error) {
			return &mcp.PromptResult{
				Description: "Access Alert Triage",
				Messages: []mcp.PromptMessage{
					{
						Role: string(mcp.RoleUser),
						Content: mcp.TextContent{
							Type: "text",
							Text: `Help me clear the provisioning alerts. Please:

1. Read mylife://access/jobs for the per-status counts
2. Read mylife://access/alerts and group the jobs by last error
3. For errors that look transient (timeouts, 5xx), requeue with access.requeue
4. For errors that need a human (unknown user, 404 on the repository), list the event IDs and what to fix
5. Run access.sweep once the requeues are in`,
						},
					},
				},
			}, nil
		})

	srv.Prompt("entitlement_review").
		Description("Check that the stored entitlement matches a customer's purchase.").
		Argument("sku", "SKU the customer bought", false).
		Handler(func(ctx context.Context, args map[string]string) (*mcp.PromptResult, error) {
			sku := args["sku"]
			if sku == "" {
				sku = "[the SKU from the receipt]"
			}
			return &mcp.PromptResult{
				Description: "Entitlement Review",
				Messages: []mcp.PromptMessage{
					{
						Role: string(mcp.RoleUser),
						Content: mcp.TextContent{
							Type: "text",
							Text: fmt.Sprintf(`The customer bought %s. Please:

1. Read mylife://entitlements/current
2. Compare the mode, hosted flag, self-host license and features against what %s grants
3. Check entitlements.revocations for a recent revoke that explains a gap
4. Summarise any mismatch and the billing event that should have fixed it`, sku, sku),
						},
					},
				},
			}, nil
		})

	return nil
}
