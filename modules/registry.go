// Package modules holds the validation modules dcheck ships with.
package modules

import (
	"github.com/teranos/dcheck/check"
	"github.com/teranos/dcheck/source"
)

// NewRegistry returns a registry with every built-in module reading from src.
func NewRegistry(src source.TableSource) (*check.Registry, error) {
	return check.NewRegistry(
		NewCoreQuality(src),
		NewGDPRPII(src),
	)
}
