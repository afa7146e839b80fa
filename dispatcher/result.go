package dispatcher

import (
	"strings"

	"github.com/goliatone/go-automate"
	"github.com/goliatone/go-automate/attrs"
	"github.com/goliatone/go-automate/engine"
)

const (
	resultFormatKey    = "result_format"
	resultOnSuccessKey = "result_on_success"
)

// returnResult honors result_format: "ignore" hands back the success token
// instead of the workspace. Explicit option fields win over attrs.
func returnResult(ws *engine.Workspace, opts automate.DeliveryOptions) *Result {
	res := &Result{Workspace: ws, Value: ws, Code: ws.ResultCode()}

	format := opts.ResultFormat
	if format == "" {
		format = attrs.Stringify(opts.Attrs[resultFormatKey])
	}
	if !strings.EqualFold(format, automate.ResultFormatIgnore) {
		return res
	}

	token := opts.ResultOnSuccess
	if token == "" {
		token = attrs.Stringify(opts.Attrs[resultOnSuccessKey])
	}
	if token == "" {
		token = automate.DefaultResultOnSuccess
	}
	res.Value = token
	return res
}
