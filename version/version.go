// Package version identifies the running dcheck build and decides whether it
// can execute a plan that pins a runner version.
package version

import (
	"fmt"
	"runtime"

	"github.com/Masterminds/semver/v3"

	"github.com/teranos/dcheck/errors"
)

// Set with ldflags:
//
//	-X github.com/teranos/dcheck/version.Version=v0.4.0
//	-X github.com/teranos/dcheck/version.CommitHash=$(git rev-parse HEAD)
//	-X github.com/teranos/dcheck/version.BuildTime=$(date -u +%FT%TZ)
var (
	Version    = "dev"
	CommitHash = "dev"
	BuildTime  = "unknown"
)

// Info describes one dcheck build. It is embedded in every run summary's
// audit block, so field names are part of the summary schema.
type Info struct {
	Version    string `json:"version"`
	CommitHash string `json:"commit_hash"`
	BuildTime  string `json:"build_time"`
	GoVersion  string `json:"go_version"`
	Platform   string `json:"platform"`
}

// Get returns the running build
func Get() Info {
	return Info{
		Version:    Version,
		CommitHash: CommitHash,
		BuildTime:  BuildTime,
		GoVersion:  runtime.Version(),
		Platform:   runtime.GOOS + "/" + runtime.GOARCH,
	}
}

// IsDev reports whether this is an untagged development build
func (i Info) IsDev() bool {
	return i.Version == "" || i.Version == "dev"
}

// Check returns nil when this build satisfies constraint, a Masterminds
// semver range such as ">= 0.3.0, < 1.0.0". An empty constraint admits every
// build. Development builds pass any well-formed constraint so that plans
// stay runnable from a source checkout.
func (i Info) Check(constraint string) error {
	if constraint == "" {
		return nil
	}
	c, err := semver.NewConstraint(constraint)
	if err != nil {
		return errors.Wrapf(err, "%q is not a valid version constraint", constraint)
	}
	if i.IsDev() {
		return nil
	}
	current, err := semver.NewVersion(i.Version)
	if err != nil {
		return errors.Wrapf(err, "dcheck version %q is not a semantic version", i.Version)
	}
	if ok, reasons := c.Validate(current); !ok {
		return errors.Newf("plan requires dcheck %s, but running %s: %v", constraint, i.Version, reasons)
	}
	return nil
}

// String is the one-line form printed by `dcheck version`
func (i Info) String() string {
	return fmt.Sprintf("dcheck %s (commit %s, built %s)", i.Version, i.CommitHash, i.BuildTime)
}

// Short returns the abbreviated commit for log lines
func (i Info) Short() string {
	if len(i.CommitHash) > 7 {
		return i.CommitHash[:7]
	}
	return i.CommitHash
}
