// Package services implements the engine controllers: membership,
// message stream, typing presence, and the per-user room directory. Each
// controller owns its entities and touches the others' only through store
// writes their subscriptions will observe.
package services

// Store path scheme. Rooms are addressed by normalized name; requests,
// messages, and typing state nest under their room; the directory is one
// document per user.

func roomPath(roomID string) string {
	return "chatrooms/" + roomID
}

func messagesCollection(roomID string) string {
	return roomPath(roomID) + "/messages"
}

func requestsCollection(roomID string) string {
	return roomPath(roomID) + "/requests"
}

func requestPath(roomID, userID string) string {
	return requestsCollection(roomID) + "/" + userID
}

func typingCollection(roomID string) string {
	return roomPath(roomID) + "/typing"
}

func typingPath(roomID, userID string) string {
	return typingCollection(roomID) + "/" + userID
}

func directoryPath(userID string) string {
	return "directory/" + userID
}
