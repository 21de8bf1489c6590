package boardrpc

import (
	"github.com/google/uuid"

	"github.com/sequent-io/e2e-core/board"
)

// CreateBoardRequest is the POST /boards body. Signature must be a valid
// personal-sign signature by SignerPK over
// board.CreateBoardSigningBytes(UUID, Name, Permissions).
type CreateBoardRequest struct {
	UUID        uuid.UUID         `json:"uuid"`
	Name        string            `json:"name"`
	Permissions board.Permissions `json:"permissions"`
	SignerPK    string            `json:"signerPk"`
	Signature   []byte            `json:"signature"`
}

// CreateBoardResponse is the POST /boards response.
type CreateBoardResponse struct {
	Board      board.Board      `json:"board"`
	Checkpoint board.Checkpoint `json:"checkpoint"`
}

// AddEntriesRequest is the POST /boards/{boardId}/entries body.
type AddEntriesRequest struct {
	Entries []board.NewDataEntry `json:"entries"`
}

// AddEntriesResponse is the POST /boards/{boardId}/entries response.
type AddEntriesResponse struct {
	Entries    []board.Entry    `json:"entries"`
	Checkpoint board.Checkpoint `json:"checkpoint"`
}

// ListEntriesResponse is the GET /boards/{boardId}/entries response.
type ListEntriesResponse struct {
	Entries        []board.Entry `json:"entries"`
	LastSequenceID uint64        `json:"lastSequenceId"`
}

// ListBoardsResponse is the GET /boards response.
type ListBoardsResponse struct {
	Boards []board.Board `json:"boards"`
}

// ModifyBoardRequest is the POST /boards/{boardId} body. Signature must be
// a valid personal-sign signature by SignerPK over
// board.ModifyBoardSigningBytes(boardId, Board).
type ModifyBoardRequest struct {
	Board     board.Board `json:"board"`
	SignerPK  string      `json:"signerPk"`
	Signature []byte      `json:"signature"`
}
