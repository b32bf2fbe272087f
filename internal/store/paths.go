package store

// Logical path scheme. Rooms, games, and presence each hang off their own
// root so subscribers can watch the narrowest tree they need.

func RoomPath(roomID string) string { return "rooms/" + roomID }

func RoomPlayersPath(roomID string) string { return "rooms/" + roomID + "/players" }

func RoomPlayerPath(roomID, playerID string) string {
	return RoomPlayersPath(roomID) + "/" + playerID
}

// RoomCodePath indexes join codes to room ids for lookup-by-code.
func RoomCodePath(code string) string { return "roomcodes/" + code }

func GamePath(roomID string) string { return "games/" + roomID }

func GamePlayersPath(roomID string) string { return "games/" + roomID + "/players" }

func GamePlayerPath(roomID, playerID string) string {
	return GamePlayersPath(roomID) + "/" + playerID
}

func CurrentQuestionPath(roomID string) string { return "games/" + roomID + "/currentQuestion" }

func PlayerAnswerPath(roomID, playerID string) string {
	return "games/" + roomID + "/currentQuestion/answers/" + playerID
}

func DistributionPath(roomID, answerKey string) string {
	return "games/" + roomID + "/currentQuestion/distribution/" + answerKey
}

func LeaderboardPath(roomID string) string { return "games/" + roomID + "/leaderboard" }

func EventsPath(roomID string) string { return "games/" + roomID + "/events" }

func PresencePath(roomID, playerID string) string {
	return "presence/" + roomID + "/" + playerID
}

func FreeModePath(roomID, playerID string) string {
	return GamePlayerPath(roomID, playerID) + "/freeMode"
}
