package visitors

import (
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
)

// NewSessionID builds a short opaque token used to group page views of one
// visit when the client did not send its own session id. It is not a
// security token: the base36 millisecond timestamp keeps ids roughly
// sortable and the random suffix separates visitors arriving together.
func NewSessionID(now time.Time) string {
	random := strings.ReplaceAll(uuid.NewString(), "-", "")
	return strconv.FormatInt(now.UnixMilli(), 36) + "-" + random[:8]
}
