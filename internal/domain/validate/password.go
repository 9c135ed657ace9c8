// password.go — оценка стойкости пароля.
// Пять правил, каждое невыполненное снижает оценку на единицу
// и попадает в список непройденных.
package validate

import "unicode"

// Правила стойкости пароля.
const (
	RuleMinLength = "min_length"
	RuleUpper     = "uppercase"
	RuleLower     = "lowercase"
	RuleDigit     = "digit"
	RuleSpecial   = "special"
)

// Минимальная длина пароля.
const passwordMinLength = 8

// StrengthResult — результат оценки стойкости пароля.
type StrengthResult struct {
	// Score — оценка 0-5 (5 — все правила выполнены).
	Score int
	// Unmet — список невыполненных правил в фиксированном порядке.
	Unmet []string
}

// PasswordStrength оценивает пароль по пяти правилам:
// длина ≥ 8, заглавная буква, строчная буква, цифра, спецсимвол.
func PasswordStrength(password string) StrengthResult {
	var hasUpper, hasLower, hasDigit, hasSpecial bool
	for _, r := range password {
		switch {
		case unicode.IsUpper(r):
			hasUpper = true
		case unicode.IsLower(r):
			hasLower = true
		case unicode.IsDigit(r):
			hasDigit = true
		default:
			hasSpecial = true
		}
	}

	result := StrengthResult{Score: 5}
	fail := func(rule string) {
		result.Score--
		result.Unmet = append(result.Unmet, rule)
	}

	if len([]rune(password)) < passwordMinLength {
		fail(RuleMinLength)
	}
	if !hasUpper {
		fail(RuleUpper)
	}
	if !hasLower {
		fail(RuleLower)
	}
	if !hasDigit {
		fail(RuleDigit)
	}
	if !hasSpecial {
		fail(RuleSpecial)
	}

	return result
}
