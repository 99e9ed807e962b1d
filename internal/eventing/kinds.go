package eventing

// Outbound event kinds understood by connected clients.
const (
	KindLocationUpdated      = "location.updated"
	KindStatusUpdated        = "status.updated"
	KindIncidentVerified     = "incident.verified"
	KindIncidentUpdated      = "incident.updated"
	KindIncidentAcknowledged = "incident.acknowledged"
	KindNotificationNew      = "notification.new"
	KindError                = "error"
)

// Room names. Rooms are the only broadcast scopes; an envelope is
// delivered to its rooms and nowhere else.
const (
	RoomPersonnel = "personnel"
	RoomAdmins    = "admins"
)

// PersonalRoom names the private room for one member.
func PersonalRoom(personnelID string) string {
	return "personnel:" + personnelID
}
