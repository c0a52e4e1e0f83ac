package protocol

// Discovery messages
const (
	IsPrimaryThere = "IS_PRIMARY_THERE"
	PrimaryFound   = "PRIMARY_FOUND"
)

// Replication requests
const (
	Backup       = "BACKUP"
	Names        = "NAMES"
	Sessions     = "SESSIONS"
	Match        = "MATCH"
	UpdateBackup = "UPDATE_BACKUP"
	Check        = "CHECK"
)

// Replication responses. PlayerNames, GameSessions and MatchResponse are
// also pushed by the primary as requests carrying a full snapshot.
const (
	Address       = "ADDRESS"
	PlayerNames   = "PLAYER_NAMES"
	GameSessions  = "GAME_SESSIONS"
	MatchResponse = "MATCH_RESPONSE"
	// Rejected refuses a request this node cannot serve, with a reason
	Rejected = "REJECTED"
)

// Client facing verbs
const (
	VerbGame      = "game"
	VerbPlayers   = "players"
	VerbCancel    = "cancel"
	VerbCheckName = "checkname"
	VerbReconn    = "reconn"
	VerbRmPlayer  = "rmplayer"
)

// Client facing response kinds
const (
	Success = "success"
	Failure = "failure"
	Error   = "error"
)

// Ack is the empty acknowledgement
func Ack() string {
	return Terminator
}

func SuccessResponse(verb string, data ...string) string {
	return Encode(Success, append([]string{verb}, data...)...)
}

func FailureResponse(verb, reason string) string {
	return Encode(Failure, verb, reason)
}

func ErrorResponse(reason string) string {
	return Encode(Error, reason)
}
