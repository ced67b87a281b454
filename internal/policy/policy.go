package policy

import "github.com/vidstream/client/internal/models"

// Capabilities is the set of actions a user may perform on a video. It is
// derived fresh on every evaluation; callers must not cache it across role or
// ownership changes.
type Capabilities struct {
	CanView         bool
	CanDelete       bool
	CanManageAccess bool
	CanUpload       bool
}

// Evaluate derives the capability set for user over video. Pure; no I/O.
//
// Public visibility is scoped to the owner's organization: a public video is
// visible to every member of that organization, not to the world. Explicit
// shares grant access regardless of the public flag or organization.
func Evaluate(user models.User, video models.VideoEntity) Capabilities {
	owner := user.ID != "" && user.ID == video.OwnerID
	admin := user.Role == models.RoleAdmin

	view := owner || admin || video.SharedWithUser(user.ID)
	if !view && video.IsPublic {
		view = video.OrganizationID == "" || video.OrganizationID == user.OrganizationID
	}

	return Capabilities{
		CanView:         view,
		CanDelete:       owner || admin,
		CanManageAccess: owner || admin,
		CanUpload:       CanUpload(user),
	}
}

// CanUpload reports whether the user may submit new videos.
func CanUpload(user models.User) bool {
	return user.Role.AtLeast(models.RoleEditor)
}

// CanChangeRole reports whether actor may change target's role. Admins manage
// every account except their own: an account can never modify itself here.
func CanChangeRole(actor, target models.User) bool {
	return actor.Role == models.RoleAdmin && actor.ID != target.ID
}

// CanDeleteUser reports whether actor may delete target's account. The same
// self-protection rule as CanChangeRole applies.
func CanDeleteUser(actor, target models.User) bool {
	return actor.Role == models.RoleAdmin && actor.ID != target.ID
}
