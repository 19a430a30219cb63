// Package audit collects best-effort metadata about who ran dcheck and where.
// Every field is optional: a failed probe leaves it empty rather than failing
// the run.
package audit

import (
	"os"
	"os/user"
	"runtime"
	"time"

	"github.com/shirou/gopsutil/v3/host"
	"github.com/shirou/gopsutil/v3/mem"

	"github.com/teranos/dcheck/version"
)

// Metadata is embedded in the run summary
type Metadata struct {
	Timestamp     time.Time         `json:"timestamp"`
	User          string            `json:"user,omitempty"`
	Host          string            `json:"host,omitempty"`
	Platform      string            `json:"platform,omitempty"`
	KernelVersion string            `json:"kernel_version,omitempty"`
	MemoryTotalGB float64           `json:"memory_total_gb,omitempty"`
	GoVersion     string            `json:"go_version"`
	Version       version.Info      `json:"version"`
	PlanSource    string            `json:"plan_source,omitempty"`
	Env           map[string]string `json:"env,omitempty"`
}

// envKeys are scheduler variables recorded when present
var envKeys = []string{
	"DATABRICKS_RUNTIME_VERSION",
	"DATABRICKS_CLUSTER_ID",
	"DATABRICKS_JOB_ID",
	"CI_JOB_ID",
}

// Collect gathers audit metadata for a run of the plan read from planSource
func Collect(planSource string) Metadata {
	md := Metadata{
		Timestamp:  time.Now().UTC(),
		User:       currentUser(),
		GoVersion:  runtime.Version(),
		Version:    version.Get(),
		PlanSource: planSource,
	}

	if info, err := host.Info(); err == nil {
		md.Host = info.Hostname
		md.Platform = info.Platform + " " + info.PlatformVersion + " (" + info.OS + "/" + runtime.GOARCH + ")"
		md.KernelVersion = info.KernelVersion
	} else if hostname, err := os.Hostname(); err == nil {
		md.Host = hostname
	}

	if vm, err := mem.VirtualMemory(); err == nil && vm.Total > 0 {
		md.MemoryTotalGB = float64(vm.Total) / 1024 / 1024 / 1024
	}

	for _, key := range envKeys {
		if value := os.Getenv(key); value != "" {
			if md.Env == nil {
				md.Env = make(map[string]string)
			}
			md.Env[key] = value
		}
	}
	return md
}

func currentUser() string {
	if u := os.Getenv("DATABRICKS_USER"); u != "" {
		return u
	}
	if u, err := user.Current(); err == nil {
		return u.Username
	}
	return os.Getenv("USER")
}
