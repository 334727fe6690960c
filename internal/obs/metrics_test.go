package obs

import "testing"

func TestCanonicalPath(t *testing.T) {
	cases := map[string]string{
		"":         "/",
		"/metrics": "/metrics",
		"/health":  "/health",
		"/api/v1/workspaces/ws-1/members":                        "/api/v1/workspaces/:workspaceId/members",
		"/api/v1/workspaces/ws-1/members/invite":                 "/api/v1/workspaces/:workspaceId/members/invite",
		"/api/v1/workspaces/ws-1/members/u-9/role":               "/api/v1/workspaces/:workspaceId/members/:userId/role",
		"/api/v1/workspaces/ws-1/audit-events?limit=10":          "/api/v1/workspaces/:workspaceId/audit-events",
		"/api/v1/workspaces/ws-1/boards/b-1/ideas/i-2/comments":  "/api/v1/workspaces/:workspaceId/boards/:boardId/ideas/:ideaId/comments",
		"/api/v1/workspaces/ws-1/policies/viewer/board:read":     "/api/v1/workspaces/:workspaceId/policies/:role/:permission",
		"/api/v1/workspaces/ws-1/policies":                       "/api/v1/workspaces/:workspaceId/policies",
		"/api/v1/workspaces":                                     "/api/v1/workspaces",
	}
	for input, expected := range cases {
		if got := CanonicalPath(input); got != expected {
			t.Fatalf("CanonicalPath(%q)=%q, want %q", input, got, expected)
		}
	}
}
