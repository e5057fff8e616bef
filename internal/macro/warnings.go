package macro

import (
	"fmt"

	"github.com/vk/gridml/internal/rows"
)

// WarningColumn is the single text column of a macro's warnings stream.
const WarningColumn = "Warning"

// warningSchema is the schema of every warnings stream.
var warningSchema = rows.Schema{{Name: WarningColumn, Type: rows.Text}}

// warningLog accumulates non-fatal diagnostics across instantiations, in
// emission order.
type warningLog struct {
	buf *rows.Buffer
}

func newWarningLog() *warningLog {
	return &warningLog{buf: rows.NewBuffer(warningSchema)}
}

func (w *warningLog) addf(format string, args ...any) {
	w.buf.MustAppend(fmt.Sprintf(format, args...))
}

// stream returns the collected warnings as an ordered row-stream.
func (w *warningLog) stream() rows.Stream {
	return w.buf
}
