package boardrpc

import (
	"encoding/json"
	"net/http"

	"github.com/sequent-io/e2e-core/log"
)

func httpWriteJSON(w http.ResponseWriter, data any) {
	jdata, err := json.Marshal(data)
	if err != nil {
		ErrMarshalingFailed.Withf("%v", err).Write(w)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(jdata); err != nil {
		log.Warnw("boardrpc: failed to write response", "error", err)
	}
}

func httpWriteOK(w http.ResponseWriter) {
	w.WriteHeader(http.StatusOK)
}
