package check

// Fault kinds recorded on a ModuleResult when the module did not return normally.
const (
	FaultCapability = "capability_fault"
	FaultTimeout    = "timeout"
)

// ModuleResult is one module's contribution to a table's outcome. Timing is
// kept out of it so identical outcomes serialize identically.
type ModuleResult struct {
	Module   string    `json:"module"`
	Severity Severity  `json:"severity"`
	Findings []Finding `json:"findings"`
	Fault    string    `json:"fault,omitempty"`
}

// ResultsSeverity returns the highest severity across module results.
func ResultsSeverity(results []ModuleResult) Severity {
	max := SeverityOK
	for _, r := range results {
		if s := MaxFindingSeverity(r.Findings); s > max {
			max = s
		}
	}
	return max
}
