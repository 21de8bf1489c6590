package boardrpc

const (
	// PingEndpoint checks the server is up.
	PingEndpoint = "/ping"

	// BoardsEndpoint creates (POST) or lists (GET) boards.
	BoardsEndpoint = "/boards"
	// BoardURLParam names the {boardId} path segment.
	BoardURLParam = "boardId"
	// BoardEndpoint modifies (POST) one board.
	BoardEndpoint = "/boards/{" + BoardURLParam + "}"
	// EntriesEndpoint appends (POST) or lists (GET) a board's entries.
	EntriesEndpoint = "/boards/{" + BoardURLParam + "}/entries"
)
