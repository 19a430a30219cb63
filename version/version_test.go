package version

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestInfoString(t *testing.T) {
	dev := Info{Version: "dev", CommitHash: "abc", BuildTime: "unknown"}
	assert.True(t, dev.IsDev())
	assert.Equal(t, "dcheck dev (commit abc, built unknown)", dev.String())
	assert.Equal(t, "abc", dev.Short())

	tagged := Info{Version: "v1.2.0", CommitHash: "0123456789", BuildTime: "2026-01-01"}
	assert.False(t, tagged.IsDev())
	assert.Equal(t, "dcheck v1.2.0 (commit 0123456789, built 2026-01-01)", tagged.String())
	assert.Equal(t, "0123456", tagged.Short())
}

func TestGet(t *testing.T) {
	info := Get()
	assert.Equal(t, Version, info.Version)
	assert.NotEmpty(t, info.GoVersion)
	assert.Contains(t, info.Platform, "/")
}

func TestCheck(t *testing.T) {
	tests := []struct {
		name       string
		version    string
		constraint string
		wantErr    string
	}{
		{name: "no constraint", version: "0.1.0"},
		{name: "in range", version: "0.4.1", constraint: ">= 0.3.0, < 1.0.0"},
		{name: "leading v", version: "v0.4.1", constraint: "~0.4"},
		{name: "dev build", version: "dev", constraint: ">= 9.0.0"},
		{name: "empty version is dev", version: "", constraint: ">= 9.0.0"},
		{name: "too old", version: "1.4.0", constraint: ">= 2.0.0", wantErr: "plan requires dcheck >= 2.0.0, but running 1.4.0"},
		{name: "bad constraint", version: "1.0.0", constraint: "soon", wantErr: `"soon" is not a valid version constraint`},
		{name: "bad constraint on dev build", version: "dev", constraint: "soon", wantErr: "not a valid version constraint"},
		{name: "unparsable version", version: "nightly", constraint: ">= 1.0.0", wantErr: `dcheck version "nightly" is not a semantic version`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := Info{Version: tt.version}.Check(tt.constraint)
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			assert.ErrorContains(t, err, tt.wantErr)
		})
	}
}
