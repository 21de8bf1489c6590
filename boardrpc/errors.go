package boardrpc

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/sequent-io/e2e-core/board"
	"github.com/sequent-io/e2e-core/log"
)

// Error is used by handler functions to wrap errors, assigning a unique
// error code and the HTTP status to respond with.
type Error struct {
	Err        error
	Code       int
	HTTPstatus int
}

// MarshalJSON returns {"error": "...", "code": N}.
func (e Error) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		Err  string `json:"error"`
		Code int    `json:"code"`
	}{Err: e.Err.Error(), Code: e.Code})
}

func (e Error) Error() string { return e.Err.Error() }

// Write serialises e as JSON to w with its HTTP status.
func (e Error) Write(w http.ResponseWriter) {
	msg, err := json.Marshal(e)
	if err != nil {
		log.Warnw("boardrpc: failed to marshal error response", "error", err)
		http.Error(w, "marshal failed", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	http.Error(w, string(msg), e.HTTPstatus)
}

// Withf appends a formatted detail to e.Err.
func (e Error) Withf(format string, args ...any) Error {
	return Error{Err: fmt.Errorf("%w: %v", e.Err, fmt.Sprintf(format, args...)), Code: e.Code, HTTPstatus: e.HTTPstatus}
}

var (
	ErrMalformedBody      = Error{Code: 40001, HTTPstatus: http.StatusBadRequest, Err: fmt.Errorf("malformed JSON body")}
	ErrMalformedBoardID   = Error{Code: 40002, HTTPstatus: http.StatusBadRequest, Err: fmt.Errorf("malformed board id")}
	ErrInvalidArgument    = Error{Code: 40003, HTTPstatus: http.StatusBadRequest, Err: fmt.Errorf("invalid argument")}
	ErrBoardNotFound      = Error{Code: 40401, HTTPstatus: http.StatusNotFound, Err: fmt.Errorf("board not found")}
	ErrPermissionDenied   = Error{Code: 40301, HTTPstatus: http.StatusForbidden, Err: fmt.Errorf("permission denied")}
	ErrBoardAlreadyExists = Error{Code: 40901, HTTPstatus: http.StatusConflict, Err: fmt.Errorf("board already exists")}
	ErrMarshalingFailed   = Error{Code: 50001, HTTPstatus: http.StatusInternalServerError, Err: fmt.Errorf("marshaling JSON failed")}
	ErrGenericInternal    = Error{Code: 50002, HTTPstatus: http.StatusInternalServerError, Err: fmt.Errorf("internal server error")}
)

// fromBoardError maps a board.Error's Kind onto the HTTP-facing taxonomy.
func fromBoardError(err *board.Error) Error {
	switch err.Kind {
	case board.KindNotFound:
		return ErrBoardNotFound.Withf("%v", err.Err)
	case board.KindAlreadyExists:
		return ErrBoardAlreadyExists.Withf("%v", err.Err)
	case board.KindPermissionDenied:
		return ErrPermissionDenied.Withf("%v", err.Err)
	case board.KindInvalidArgument:
		return ErrInvalidArgument.Withf("%v", err.Err)
	default:
		return ErrGenericInternal.Withf("%v", err.Err)
	}
}
