package domain

import (
	"fmt"
	"maps"
	"slices"
)

// SharedObject is the dynamic section of one ELF file.
type SharedObject struct {
	Name   string
	SONAME string
	Needed []string
}

// DependencyReport summarizes the dynamic dependencies of a set of shared objects.
type DependencyReport struct {
	// Objects maps each object to its external dependencies.
	Objects       map[string][]string `json:"objects"`
	External      []string            `json:"external"`
	SelfSatisfied []string            `json:"self_satisfied"`
	Warnings      []string            `json:"warnings"`
}

// NewDependencyReport classifies every NEEDED entry of objects. A name is
// self-satisfied when it equals the file name or SONAME of any object.
// All lists are sorted and de-duplicated.
func NewDependencyReport(objects []SharedObject, policy AuditPolicy) *DependencyReport {
	members := make(map[string]bool, len(objects)*2)
	for _, o := range objects {
		members[o.Name] = true
		if o.SONAME != "" {
			members[o.SONAME] = true
		}
	}

	report := &DependencyReport{
		Objects:       make(map[string][]string, len(objects)),
		External:      []string{},
		SelfSatisfied: []string{},
		Warnings:      []string{},
	}
	external := make(map[string]bool)
	self := make(map[string]bool)
	for _, o := range objects {
		deps := make(map[string]bool)
		for _, n := range o.Needed {
			if members[n] {
				self[n] = true
				continue
			}
			deps[n] = true
			external[n] = true
		}
		report.Objects[o.Name] = append([]string{}, slices.Sorted(maps.Keys(deps))...)
	}
	report.External = append(report.External, slices.Sorted(maps.Keys(external))...)
	report.SelfSatisfied = append(report.SelfSatisfied, slices.Sorted(maps.Keys(self))...)

	if policy.MaxExternal > 0 && len(report.External) > policy.MaxExternal {
		report.Warnings = append(report.Warnings,
			fmt.Sprintf("%d external dependencies exceed the limit of %d", len(report.External), policy.MaxExternal))
	}
	if len(policy.Expected) > 0 {
		for _, name := range report.External {
			if !slices.Contains(policy.Expected, name) {
				report.Warnings = append(report.Warnings, "unexpected external dependency "+name)
			}
		}
	}
	return report
}

// HasWarnings reports whether the audit produced any warning.
func (r *DependencyReport) HasWarnings() bool {
	return len(r.Warnings) > 0
}
