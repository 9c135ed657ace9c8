package validate

import (
	"testing"
	"time"
)

var testNow = time.Date(2026, time.March, 10, 12, 0, 0, 0, time.UTC)

func TestMissionDates_Valid(t *testing.T) {
	start := testNow.Add(time.Hour)
	end := start.Add(4 * time.Hour)

	res := MissionDates(start, end, testNow)
	if !res.Valid {
		t.Errorf("MissionDates() невалиден для корректного окна: %+v", res)
	}
}

func TestMissionDates_InvalidRange(t *testing.T) {
	start := testNow.Add(2 * time.Hour)

	// start == end и start > end — оба InvalidRange
	for _, end := range []time.Time{start, start.Add(-time.Minute)} {
		res := MissionDates(start, end, testNow)
		if res.Valid {
			t.Fatalf("MissionDates(%v, %v) должен быть невалиден", start, end)
		}
		if res.Reason != ReasonInvalidRange {
			t.Errorf("Reason = %q, ожидается %q", res.Reason, ReasonInvalidRange)
		}
	}
}

func TestMissionDates_PastStart(t *testing.T) {
	start := testNow.Add(-time.Hour)
	end := testNow.Add(time.Hour)

	res := MissionDates(start, end, testNow)
	if res.Valid {
		t.Fatal("MissionDates() с началом в прошлом должен быть невалиден")
	}
	if res.Reason != ReasonPastStart {
		t.Errorf("Reason = %q, ожидается %q", res.Reason, ReasonPastStart)
	}
}

func TestMissionDates_RangeCheckedBeforePast(t *testing.T) {
	// Окно одновременно перевёрнутое и в прошлом — приоритет у InvalidRange.
	start := testNow.Add(-time.Hour)
	end := testNow.Add(-2 * time.Hour)

	res := MissionDates(start, end, testNow)
	if res.Reason != ReasonInvalidRange {
		t.Errorf("Reason = %q, ожидается %q", res.Reason, ReasonInvalidRange)
	}
}

func TestAvailabilityTimes(t *testing.T) {
	// Разные календарные даты, сравнивается только время суток.
	morning := time.Date(2026, time.May, 1, 9, 0, 0, 0, time.UTC)
	evening := time.Date(1999, time.December, 31, 18, 30, 0, 0, time.UTC)

	if res := AvailabilityTimes(morning, evening); !res.Valid {
		t.Errorf("AvailabilityTimes(09:00, 18:30) невалиден: %+v", res)
	}

	if res := AvailabilityTimes(evening, morning); res.Valid {
		t.Error("AvailabilityTimes(18:30, 09:00) должен быть невалиден")
	} else if res.Reason != ReasonInvalidRange {
		t.Errorf("Reason = %q, ожидается %q", res.Reason, ReasonInvalidRange)
	}

	if res := AvailabilityTimes(morning, morning); res.Valid {
		t.Error("AvailabilityTimes с равными границами должен быть невалиден")
	}
}

func TestPlanningConflict_FirstMatch(t *testing.T) {
	base := testNow
	existing := []Range{
		{ID: "a", Start: base, End: base.Add(time.Hour)},
		{ID: "b", Start: base.Add(30 * time.Minute), End: base.Add(2 * time.Hour)},
		{ID: "c", Start: base.Add(90 * time.Minute), End: base.Add(3 * time.Hour)},
	}

	// Кандидат пересекает b и c, но первым в порядке обхода идёт b.
	res := PlanningConflict(base.Add(100*time.Minute), base.Add(110*time.Minute), existing)
	if !res.Conflict {
		t.Fatal("PlanningConflict() не нашёл пересечение")
	}
	if res.With.ID != "b" {
		t.Errorf("With.ID = %q, ожидается первый по порядку обхода \"b\"", res.With.ID)
	}
}

func TestPlanningConflict_HalfOpenBoundaries(t *testing.T) {
	base := testNow
	existing := []Range{{ID: "a", Start: base, End: base.Add(time.Hour)}}

	// Кандидат, начинающийся ровно в конце существующего — не конфликт.
	if res := PlanningConflict(base.Add(time.Hour), base.Add(2*time.Hour), existing); res.Conflict {
		t.Error("примыкание к концу интервала не должно быть конфликтом")
	}

	// Кандидат, заканчивающийся ровно в начале существующего — не конфликт.
	if res := PlanningConflict(base.Add(-time.Hour), base, existing); res.Conflict {
		t.Error("примыкание к началу интервала не должно быть конфликтом")
	}

	// Пересечение на одну минуту — конфликт.
	if res := PlanningConflict(base.Add(59*time.Minute), base.Add(2*time.Hour), existing); !res.Conflict {
		t.Error("пересечение на минуту должно быть конфликтом")
	}
}

func TestPlanningConflict_Empty(t *testing.T) {
	res := PlanningConflict(testNow, testNow.Add(time.Hour), nil)
	if res.Conflict {
		t.Error("PlanningConflict() без существующих интервалов не должен находить конфликт")
	}
	if res.With != nil {
		t.Error("With должен быть nil при отсутствии конфликта")
	}
}

func TestEmail(t *testing.T) {
	valid := []string{"jean@example.com", "a.b+c@sub.domain.fr"}
	for _, s := range valid {
		if !Email(s).Valid {
			t.Errorf("Email(%q) должен быть валиден", s)
		}
	}

	invalid := []string{"", "jean", "jean@", "@example.com", "jean@example"}
	for _, s := range invalid {
		if Email(s).Valid {
			t.Errorf("Email(%q) должен быть невалиден", s)
		}
	}
}

func TestPhone(t *testing.T) {
	valid := []string{"+33612345678", "06 12 34 56 78", "06-12-34-56-78"}
	for _, s := range valid {
		if !Phone(s).Valid {
			t.Errorf("Phone(%q) должен быть валиден", s)
		}
	}

	invalid := []string{"", "abc", "12", "+"}
	for _, s := range invalid {
		if Phone(s).Valid {
			t.Errorf("Phone(%q) должен быть невалиден", s)
		}
	}
}

func TestFee(t *testing.T) {
	const ceiling = 10000.0

	if !Fee(150, ceiling).Valid {
		t.Error("Fee(150) должен быть валиден")
	}
	if Fee(0, ceiling).Valid {
		t.Error("Fee(0) должен быть невалиден")
	}
	if Fee(-1, ceiling).Valid {
		t.Error("Fee(-1) должен быть невалиден")
	}
	if Fee(ceiling+0.01, ceiling).Valid {
		t.Error("Fee выше потолка должен быть невалиден")
	}
	if !Fee(ceiling, ceiling).Valid {
		t.Error("Fee, равный потолку, должен быть валиден")
	}
}

func TestPasswordStrength_AllRulesMet(t *testing.T) {
	res := PasswordStrength("Abc123!@")
	if res.Score != 5 {
		t.Errorf("Score = %d, ожидается 5", res.Score)
	}
	if len(res.Unmet) != 0 {
		t.Errorf("Unmet = %v, ожидается пустой список", res.Unmet)
	}
}

func TestPasswordStrength_Weak(t *testing.T) {
	res := PasswordStrength("abc")
	if res.Score > 1 {
		t.Errorf("Score = %d, ожидается ≤ 1", res.Score)
	}
	if len(res.Unmet) != 4 {
		t.Errorf("len(Unmet) = %d, ожидается 4 (%v)", len(res.Unmet), res.Unmet)
	}

	// "abc" выполняет только правило строчных букв
	for _, rule := range res.Unmet {
		if rule == RuleLower {
			t.Error("RuleLower не должен быть в списке невыполненных")
		}
	}
}

func TestPasswordStrength_EachRuleCounts(t *testing.T) {
	cases := []struct {
		password string
		missing  string
	}{
		{"Abc12!@", RuleMinLength},   // 7 символов
		{"abc123!@", RuleUpper},      // нет заглавных
		{"ABC123!@", RuleLower},      // нет строчных
		{"Abcdef!@", RuleDigit},      // нет цифр
		{"Abc12345", RuleSpecial},    // нет спецсимволов
	}

	for _, c := range cases {
		res := PasswordStrength(c.password)
		if res.Score != 4 {
			t.Errorf("PasswordStrength(%q).Score = %d, ожидается 4", c.password, res.Score)
		}
		if len(res.Unmet) != 1 || res.Unmet[0] != c.missing {
			t.Errorf("PasswordStrength(%q).Unmet = %v, ожидается [%s]", c.password, res.Unmet, c.missing)
		}
	}
}
