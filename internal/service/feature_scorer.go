package service

import (
	"strings"

	"github.com/referral-triage-server/internal/domain"
)

// The scoring heuristics below are deterministic keyword/threshold tables.
// Severity takes the MAXIMUM matched weight; symptoms ACCUMULATE every
// matched entry. The two behaviors are intentionally different and must
// not be unified: doing so would silently change classification outcomes.

// severityKeywords maps clinical urgency phrases found in the referral
// justification/motive to a severity weight. Matching is a lower-cased,
// diacritic-folded substring scan; the highest matched weight wins.
var severityKeywords = map[string]float64{
	"emergencia":            1.0,
	"infarto":               1.0,
	"paro cardiaco":         1.0,
	"shock":                 0.95,
	"perdida de conciencia": 0.95,
	"urgente":               0.9,
	"convulsiones":          0.9,
	"dolor toracico":        0.9,
	"hemorragia":            0.9,
	"sangrado activo":       0.85,
	"grave":                 0.8,
	"disnea":                0.8,
	"severa":                0.8,
	"severo":                0.8,
	"agudo":                 0.7,
	"aguda":                 0.7,
	"intenso":               0.6,
	"persistente":           0.5,
}

// severityFloor is returned when no severity keyword matches. Absence of
// signal is not "safe".
const severityFloor = 0.3

// specialtyCriticality maps requested specialties to a criticality score.
// Unknown specialties fall back to specialtyDefault.
var specialtyCriticality = map[string]float64{
	"urgencias":            1.0,
	"cardiologia":          0.9,
	"oncologia":            0.9,
	"neurologia":           0.85,
	"neumologia":           0.8,
	"cirugia":              0.75,
	"medicina interna":     0.7,
	"pediatria":            0.7,
	"nefrologia":           0.65,
	"gastroenterologia":    0.6,
	"ginecologia":          0.55,
	"traumatologia":        0.55,
	"endocrinologia":       0.5,
	"psiquiatria":          0.45,
	"otorrinolaringologia": 0.4,
	"oftalmologia":         0.35,
	"dermatologia":         0.3,
}

const specialtyDefault = 0.5

// symptomKeywords maps alarm-symptom phrases to weights. Every matched
// entry contributes weight*symptomUnit to the score; overlapping phrases
// ("disnea" inside "disnea severa") each count.
var symptomKeywords = map[string]float64{
	"paro respiratorio":   1.0,
	"disnea severa":       0.95,
	"dolor toracico":      0.9,
	"hemoptisis":          0.9,
	"deficit neurologico": 0.9,
	"cianosis":            0.85,
	"sincope":             0.85,
	"rigidez de nuca":     0.8,
	"hipotension":         0.8,
	"disnea":              0.8,
	"hematemesis":         0.8,
	"melena":              0.7,
	"palpitaciones":       0.6,
	"fiebre alta":         0.6,
	"ictericia":           0.55,
	"edema":               0.5,
}

const (
	symptomBase         = 0.2
	symptomUnit         = 0.3
	symptomClusterBonus = 0.2
	symptomClusterMin   = 2 // bonus applies when strictly more matched
)

// foldSpanish lowercases text and strips the Spanish diacritics so that
// "dermatología" and "dermatologia" compare equal.
var foldSpanish = strings.NewReplacer(
	"á", "a", "é", "e", "í", "i", "ó", "o", "ú", "u", "ü", "u", "ñ", "n",
	"Á", "a", "É", "e", "Í", "i", "Ó", "o", "Ú", "u", "Ü", "u", "Ñ", "n",
)

func normalizeText(s string) string {
	return foldSpanish.Replace(strings.ToLower(s))
}

// AgeScore maps age in years to risk via a piecewise step function.
// Risk is bimodal: the very young and very old score higher than
// working-age adults. Boundary ages (5, 18, 50, 65, 80) resolve to the
// higher bracket.
func AgeScore(age float64) float64 {
	switch {
	case age >= 80:
		return 1.0
	case age >= 65:
		return 0.8
	case age >= 50:
		return 0.6
	case age >= 18:
		return 0.4
	case age >= 5:
		return 0.7
	default:
		return 0.9
	}
}

// SeverityScore scans the concatenated justification and motive text for
// severity keywords and returns the maximum matched weight, or the 0.3
// floor when nothing matches.
func SeverityScore(justification, motive string) float64 {
	text := normalizeText(justification + " " + motive)
	score := severityFloor
	for keyword, weight := range severityKeywords {
		if strings.Contains(text, keyword) && weight > score {
			score = weight
		}
	}
	return score
}

// SpecialtyScore looks up the requested specialty in the criticality
// table; unknown specialties score the neutral default 0.5.
func SpecialtyScore(specialty string) float64 {
	if score, ok := specialtyCriticality[normalizeText(strings.TrimSpace(specialty))]; ok {
		return score
	}
	return specialtyDefault
}

// SymptomsScore scans text for alarm symptoms. The score is a 0.2 base
// plus 0.3 per matched weight, capped at 1.0, with a +0.2 bonus when more
// than two distinct symptoms matched (clustering outranks single
// mentions). The final value is clamped to [0,1].
func SymptomsScore(text string) float64 {
	folded := normalizeText(text)
	matched := 0
	score := symptomBase
	for keyword, weight := range symptomKeywords {
		if strings.Contains(folded, keyword) {
			matched++
			score += weight * symptomUnit
		}
	}
	score = clamp01(score)
	if matched > symptomClusterMin {
		score += symptomClusterBonus
	}
	return clamp01(score)
}

// SubScores computes all four factor sub-scores for a referral. The
// symptom scan covers justification, motive and presumptive diagnosis.
func SubScores(f *domain.ReferralFeatures) map[domain.Factor]float64 {
	symptomText := f.Justification + " " + f.Motive + " " + f.PresumptiveDiagnosis
	return map[domain.Factor]float64{
		domain.FactorAge:       AgeScore(f.AgeYears),
		domain.FactorSeverity:  SeverityScore(f.Justification, f.Motive),
		domain.FactorSpecialty: SpecialtyScore(f.Specialty),
		domain.FactorSymptoms:  SymptomsScore(symptomText),
	}
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
