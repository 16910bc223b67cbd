package domain_test

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"go.trai.ch/kiln/internal/core/domain"
)

func TestNewDependencyReport_ExternalScenario(t *testing.T) {
	objects := []domain.SharedObject{
		{Name: "libfoo.so", Needed: []string{"libbar.so", "libc.so"}},
	}

	report := domain.NewDependencyReport(objects, domain.AuditPolicy{})

	assert.Equal(t, []string{"libbar.so", "libc.so"}, report.External)
	assert.Empty(t, report.SelfSatisfied)
	assert.Empty(t, report.Warnings)
	assert.Equal(t, []string{"libbar.so", "libc.so"}, report.Objects["libfoo.so"])
}

func TestNewDependencyReport_SelfSatisfied(t *testing.T) {
	objects := []domain.SharedObject{
		{Name: "libcairo.so.2", SONAME: "libcairo.so.2", Needed: []string{"libfontconfig.so.1", "libX11.so.6", "libc.so.6"}},
		{Name: "libfontconfig.so.1", SONAME: "libfontconfig.so.1", Needed: []string{"libfreetype.so.6", "libc.so.6"}},
		{Name: "libfreetype.so", SONAME: "libfreetype.so.6", Needed: []string{"libc.so.6", "libm.so.6"}},
	}

	report := domain.NewDependencyReport(objects, domain.AuditPolicy{})

	want := &domain.DependencyReport{
		Objects: map[string][]string{
			"libcairo.so.2":      {"libX11.so.6", "libc.so.6"},
			"libfontconfig.so.1": {"libc.so.6"},
			"libfreetype.so":     {"libc.so.6", "libm.so.6"},
		},
		External:      []string{"libX11.so.6", "libc.so.6", "libm.so.6"},
		SelfSatisfied: []string{"libfontconfig.so.1", "libfreetype.so.6"},
		Warnings:      []string{},
	}
	if diff := cmp.Diff(want, report); diff != "" {
		t.Errorf("report mismatch (-want +got):\n%s", diff)
	}
}

func TestNewDependencyReport_Deterministic(t *testing.T) {
	a := []domain.SharedObject{
		{Name: "b.so", Needed: []string{"libz.so.1", "libc.so.6", "libz.so.1"}},
		{Name: "a.so", Needed: []string{"libm.so.6", "b.so"}},
	}
	b := []domain.SharedObject{a[1], a[0]}

	first := domain.NewDependencyReport(a, domain.AuditPolicy{})
	second := domain.NewDependencyReport(b, domain.AuditPolicy{})

	if diff := cmp.Diff(first, second); diff != "" {
		t.Errorf("reports differ (-first +second):\n%s", diff)
	}
	assert.Equal(t, []string{"libc.so.6", "libm.so.6", "libz.so.1"}, first.External)
}

func TestNewDependencyReport_Policy(t *testing.T) {
	objects := []domain.SharedObject{
		{Name: "libcairo.so.2", Needed: []string{"libX11.so.6", "libc.so.6", "libpixman-1.so.0"}},
	}

	tests := []struct {
		name     string
		policy   domain.AuditPolicy
		warnings []string
	}{
		{
			name:     "within limits",
			policy:   domain.AuditPolicy{MaxExternal: 3, Expected: []string{"libX11.so.6", "libc.so.6", "libpixman-1.so.0"}},
			warnings: []string{},
		},
		{
			name:     "too many",
			policy:   domain.AuditPolicy{MaxExternal: 2},
			warnings: []string{"3 external dependencies exceed the limit of 2"},
		},
		{
			name:     "unexpected",
			policy:   domain.AuditPolicy{Expected: []string{"libX11.so.6", "libc.so.6"}},
			warnings: []string{"unexpected external dependency libpixman-1.so.0"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			report := domain.NewDependencyReport(objects, tt.policy)
			assert.Equal(t, tt.warnings, report.Warnings)
			assert.Equal(t, len(tt.warnings) > 0, report.HasWarnings())
		})
	}
}
