package auth

// defaultCatalog maps each role to the permissions it holds when no
// workspace override applies. Every role has an entry.
var defaultCatalog = map[Role][]Permission{
	RoleTenantAdmin: {
		PermBoardRead, PermBoardWrite,
		PermIdeaRead, PermIdeaWrite, PermIdeaStatusWrite,
		PermVoteWrite, PermCommentWrite,
		PermMembershipRead, PermMembershipWrite,
		PermAuditRead,
		PermPolicyRead, PermPolicyWrite,
	},
	RoleWorkspaceAdmin: {
		PermBoardRead, PermBoardWrite,
		PermIdeaRead, PermIdeaWrite, PermIdeaStatusWrite,
		PermVoteWrite, PermCommentWrite,
		PermMembershipRead, PermMembershipWrite,
		PermAuditRead,
		PermPolicyRead,
	},
	RoleProductManager: {
		PermBoardRead, PermBoardWrite,
		PermIdeaRead, PermIdeaWrite, PermIdeaStatusWrite,
		PermVoteWrite, PermCommentWrite,
		PermMembershipRead,
		PermAuditRead,
	},
	RoleEngineeringManager: {
		PermBoardRead, PermBoardWrite,
		PermIdeaRead, PermIdeaWrite, PermIdeaStatusWrite,
		PermVoteWrite, PermCommentWrite,
		PermMembershipRead,
		PermAuditRead,
	},
	RoleContributor: {
		PermBoardRead,
		PermIdeaRead, PermIdeaWrite,
		PermVoteWrite, PermCommentWrite,
		PermMembershipRead,
	},
	RoleViewer: {
		PermBoardRead,
		PermIdeaRead,
		PermMembershipRead,
	},
}

// DefaultPermissions returns a copy of the role's default permission set.
// Unknown roles get an empty set.
func DefaultPermissions(role Role) []Permission {
	perms := defaultCatalog[role]
	out := make([]Permission, len(perms))
	copy(out, perms)
	return out
}

// CatalogAllows reports whether the static catalog grants perm to role.
func CatalogAllows(role Role, perm Permission) bool {
	for _, p := range defaultCatalog[role] {
		if p == perm {
			return true
		}
	}
	return false
}
