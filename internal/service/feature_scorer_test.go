package service

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/referral-triage-server/internal/domain"
)

func TestAgeScore(t *testing.T) {
	tests := []struct {
		name string
		age  float64
		want float64
	}{
		{"infant", 1, 0.9},
		{"boundary five resolves upward", 5, 0.7},
		{"child", 12, 0.7},
		{"boundary eighteen resolves upward", 18, 0.4},
		{"working age", 35, 0.4},
		{"boundary fifty resolves upward", 50, 0.6},
		{"late middle age", 60, 0.6},
		{"boundary sixty-five resolves upward", 65, 0.8},
		{"elderly", 72, 0.8},
		{"boundary eighty resolves upward", 80, 1.0},
		{"very elderly", 95, 1.0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, AgeScore(tt.age))
		})
	}
}

func TestSeverityScore(t *testing.T) {
	t.Run("highest matched keyword wins", func(t *testing.T) {
		// "urgente" (0.9) and "persistente" (0.5) both match.
		got := SeverityScore("dolor persistente, atencion urgente", "")
		assert.Equal(t, 0.9, got)
	})

	t.Run("floor when nothing matches", func(t *testing.T) {
		assert.Equal(t, 0.3, SeverityScore("control de rutina", "chequeo anual"))
	})

	t.Run("scans both justification and motive", func(t *testing.T) {
		assert.Equal(t, 1.0, SeverityScore("", "sospecha de infarto"))
	})

	t.Run("diacritics fold before matching", func(t *testing.T) {
		assert.Equal(t, 0.9, SeverityScore("dolor torácico", ""))
	})

	t.Run("case insensitive", func(t *testing.T) {
		assert.Equal(t, 1.0, SeverityScore("EMERGENCIA", ""))
	})
}

func TestSpecialtyScore(t *testing.T) {
	t.Run("known specialty", func(t *testing.T) {
		assert.Equal(t, 0.9, SpecialtyScore("cardiologia"))
	})

	t.Run("accented spelling scores the same", func(t *testing.T) {
		assert.Equal(t, SpecialtyScore("dermatologia"), SpecialtyScore("Dermatología"))
	})

	t.Run("surrounding whitespace ignored", func(t *testing.T) {
		assert.Equal(t, 1.0, SpecialtyScore("  urgencias "))
	})

	t.Run("unknown specialty gets neutral default", func(t *testing.T) {
		assert.Equal(t, 0.5, SpecialtyScore("medicina deportiva"))
	})
}

func TestSymptomsScore(t *testing.T) {
	t.Run("no symptoms leaves the base", func(t *testing.T) {
		assert.InDelta(t, 0.2, SymptomsScore("control de rutina"), 1e-9)
	})

	t.Run("single symptom accumulates", func(t *testing.T) {
		// 0.2 + 0.7*0.3
		assert.InDelta(t, 0.41, SymptomsScore("presenta melena"), 1e-9)
	})

	t.Run("two symptoms accumulate without bonus", func(t *testing.T) {
		// 0.2 + (0.7+0.55)*0.3
		assert.InDelta(t, 0.575, SymptomsScore("melena e ictericia"), 1e-9)
	})

	t.Run("overlapping phrases each count", func(t *testing.T) {
		// "disnea severa" matches both "disnea severa" (0.95) and "disnea"
		// (0.8): 0.2 + (0.95+0.8)*0.3
		assert.InDelta(t, 0.725, SymptomsScore("disnea severa"), 1e-9)
	})

	t.Run("more than two distinct symptoms adds the cluster bonus", func(t *testing.T) {
		// melena (0.7), ictericia (0.55), edema (0.5): 0.2 + 1.75*0.3 = 0.725,
		// then +0.2 cluster bonus.
		assert.InDelta(t, 0.925, SymptomsScore("melena, ictericia y edema"), 1e-9)
	})

	t.Run("score is capped at one", func(t *testing.T) {
		got := SymptomsScore("dolor torácico, disnea severa, síncope, hemoptisis, cianosis")
		assert.Equal(t, 1.0, got)
	})
}

func TestSubScores(t *testing.T) {
	features := &domain.ReferralFeatures{
		ReferralID:           "REF-100",
		AgeYears:             82,
		Specialty:            "Urgencias",
		Justification:        "Paciente urgente con dolor torácico",
		Motive:               "disnea y síncope",
		PresumptiveDiagnosis: "sindrome coronario agudo",
	}

	scores := SubScores(features)

	assert.Equal(t, 1.0, scores[domain.FactorAge])
	// "agudo" (0.7) appears only in the diagnosis, which the severity scan
	// does not cover; "urgente" and "dolor toracico" both cap it at 0.9.
	assert.Equal(t, 0.9, scores[domain.FactorSeverity])
	assert.Equal(t, 1.0, scores[domain.FactorSpecialty])
	// dolor toracico, disnea and sincope matched: the cluster bonus pushes
	// the accumulated score past the cap.
	assert.Equal(t, 1.0, scores[domain.FactorSymptoms])
}
