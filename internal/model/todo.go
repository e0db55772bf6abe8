package model

// Todo is a to-do entry as the backend returns it.
// The backend owns it; the client only caches the last known state.
type Todo struct {
	ID        int64  `json:"id"`
	Title     string `json:"title"`
	Completed bool   `json:"completed"`
}
