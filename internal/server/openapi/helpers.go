package openapi

import (
	"encoding/json"
	"net/http"
	"net/url"
	"strconv"
)

// ImplResponse is what a servicer hands back to its controller: the status
// code and the value to encode as the body.
type ImplResponse struct {
	Code int
	Body any
}

// Response builds an ImplResponse.
func Response(code int, body any) ImplResponse {
	return ImplResponse{Code: code, Body: body}
}

// EncodeJSONResponse writes body as JSON with the given status. A zero
// status means 200 and a nil body writes only the header.
func EncodeJSONResponse(w http.ResponseWriter, code int, body any) error {
	if code == 0 {
		code = http.StatusOK
	}
	w.Header().Set("Content-Type", "application/json; charset=UTF-8")
	w.WriteHeader(code)
	if body == nil {
		return nil
	}
	return json.NewEncoder(w).Encode(body)
}

// queryInt32 reads key from query. An absent key yields def.
func queryInt32(query url.Values, key string, def int32) (int32, error) {
	if !query.Has(key) {
		return def, nil
	}
	v, err := strconv.ParseInt(query.Get(key), 10, 32)
	if err != nil {
		return 0, err
	}
	return int32(v), nil
}
