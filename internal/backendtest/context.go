package backendtest

import (
	"context"
	"net/http"
)

func contextWithUser(r *http.Request, userID string) context.Context {
	return context.WithValue(r.Context(), userKey{}, userID)
}

func userFrom(r *http.Request) string {
	userID, _ := r.Context().Value(userKey{}).(string)
	return userID
}
