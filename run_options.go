package go_applepay

import (
	"encoding/json"
	"fmt"

	"github.com/stremovskyy/go-applepay/log"
)

// RunOption controls behavior of a single SDK call.
type RunOption func(*runOptions)

// DryRunHandler receives information about a skipped request.
type DryRunHandler func(method string, url string, payload any)

type runOptions struct {
	dryRun       bool
	dryRunHandle DryRunHandler
}

var dryRunLogger = log.NewDefault()

// DryRun skips the gateway call.
//
// The validation URL is still checked and the certificate is still resolved,
// so a dry run proves the configuration without asking Apple for a session.
// Optional handler lets you inspect the request payload.
func DryRun(handler ...DryRunHandler) RunOption {
	return func(o *runOptions) {
		o.dryRun = true
		if len(handler) > 0 && handler[0] != nil {
			o.dryRunHandle = handler[0]
			return
		}
		o.dryRunHandle = defaultDryRunHandler
	}
}

func collectRunOptions(opts []RunOption) *runOptions {
	if len(opts) == 0 {
		return nil
	}

	r := &runOptions{}
	for _, opt := range opts {
		if opt != nil {
			opt(r)
		}
	}
	return r
}

func (o *runOptions) isDryRun() bool {
	return o != nil && o.dryRun
}

func shouldDryRun(runOpts []RunOption, method string, url string, payload any) bool {
	opts := collectRunOptions(runOpts)
	if !opts.isDryRun() {
		return false
	}
	if opts.dryRunHandle != nil {
		opts.dryRunHandle(method, url, payload)
	}
	return true
}

func defaultDryRunHandler(method string, url string, payload any) {
	dryRunLogger.Infof("Dry run: skipping merchant validation %s %s", method, url)
	dryRunLogger.Infof("Dry run payload:\n%s", marshalIndent(payload))
}

func marshalIndent(v any) string {
	if v == nil {
		return "<nil>"
	}
	out, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Sprintf("unable to marshal %T: %v", v, err)
	}
	return string(out)
}
