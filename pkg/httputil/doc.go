// Package httputil provides HTTP helpers shared by the API handlers:
// JSON responses, request parsing, client address extraction and the
// request-id, logging and recovery middleware.
//
//	httputil.WriteJSON(w, http.StatusOK, data)
//	httputil.WriteTooManyRequests(w, 42*time.Second, msg)
//	if !httputil.ParseJSONOrError(w, r, &req) { return }
package httputil
