package status

import (
	"github.com/deploymenttheory/go-ataraid/pkg/app"
)

// Validate validates a status request
func (r *Request) Validate() error {
	if err := r.Target.Validate(); err != nil {
		return app.NewError(app.ErrCodeInvalidInput, "invalid array target", err)
	}
	return nil
}
