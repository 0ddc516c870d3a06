package bindings

import (
	"encoding/json"
	"io"

	"caiyun/internal/host"
	logx "caiyun/pkg/logx"
)

// EmitResult writes each completion payload to w as one JSON line.
func EmitResult(w io.Writer, log logx.Logger) host.Completer {
	return func(c host.Completion) {
		if err := json.NewEncoder(w).Encode(c); err != nil {
			log.Warn("emit result failed", logx.Err(err))
		}
	}
}
