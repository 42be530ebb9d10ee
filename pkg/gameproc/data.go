package gameproc

import (
	"github.com/google/uuid"

	"github.com/modoterra/gamehost/pkg/logstore"
)

// Data is per-process state that may outlive one child. A restarted game can
// share its predecessor's Data, so rows keep their RowIDs and classes are
// announced only once per session.
type Data struct {
	Log     *logstore.Store
	Session string
}

// NewData returns fresh state with an empty log and a new session id.
func NewData() *Data {
	return &Data{
		Log:     logstore.New(),
		Session: uuid.NewString(),
	}
}
