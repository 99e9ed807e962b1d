package auth

// Role represents a verified user role.
type Role string

const (
	RoleResponder  Role = "responder"
	RoleDispatcher Role = "dispatcher"
	RoleAdmin      Role = "admin"
)

// Capability names an action a role may perform.
type Capability string

const (
	CapabilityPublishLocation  Capability = "publish_location"
	CapabilityPublishStatus    Capability = "publish_status"
	CapabilityReportMarker     Capability = "report_marker"
	CapabilityBroadcast        Capability = "broadcast"
	CapabilityTransitionStatus Capability = "transition_status"
	CapabilityManageRoster     Capability = "manage_roster"
	CapabilityAcknowledge      Capability = "acknowledge"
	CapabilityExportReports    Capability = "export_reports"
	CapabilityViewIncidents    Capability = "view_incidents"
)

// NormalizeRole validates and normalizes a role string.
func NormalizeRole(value string) (Role, bool) {
	switch Role(value) {
	case RoleResponder, RoleDispatcher, RoleAdmin:
		return Role(value), true
	default:
		return "", false
	}
}

// IsAdminLike reports whether the role belongs to the admin audience.
func IsAdminLike(role Role) bool {
	return role == RoleAdmin || role == RoleDispatcher
}

// Can reports whether the role holds the capability. The switch is the
// whole permission model; every capability must be listed here.
func (r Role) Can(capability Capability) bool {
	switch capability {
	case CapabilityPublishLocation, CapabilityPublishStatus, CapabilityReportMarker, CapabilityAcknowledge:
		return r == RoleResponder || r == RoleDispatcher || r == RoleAdmin
	case CapabilityBroadcast, CapabilityTransitionStatus, CapabilityManageRoster:
		return IsAdminLike(r)
	case CapabilityExportReports:
		return r == RoleAdmin
	case CapabilityViewIncidents:
		return r == RoleResponder || r == RoleDispatcher || r == RoleAdmin
	default:
		return false
	}
}

// RoleAtLeast returns true when role satisfies required role.
func RoleAtLeast(role Role, required Role) bool {
	return roleRank(role) >= roleRank(required)
}

func roleRank(role Role) int {
	switch role {
	case RoleResponder:
		return 1
	case RoleDispatcher:
		return 2
	case RoleAdmin:
		return 3
	default:
		return 0
	}
}
