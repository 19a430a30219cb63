package audit

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCollect(t *testing.T) {
	t.Setenv("DATABRICKS_JOB_ID", "1234")
	t.Setenv("DATABRICKS_USER", "etl@example.com")

	md := Collect("plans/nightly.yaml")

	assert.Equal(t, "plans/nightly.yaml", md.PlanSource)
	assert.Equal(t, "etl@example.com", md.User)
	assert.Equal(t, "1234", md.Env["DATABRICKS_JOB_ID"])
	assert.NotEmpty(t, md.GoVersion)
	assert.False(t, md.Timestamp.IsZero())
}
