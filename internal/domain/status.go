package domain

// OutcomeKind — итог одной попытки выполнения schedule.
//
// Жизненный цикл попытки:
//
//	DUE → EXECUTED        (действие выполнено, run-state продвинут)
//	    ↘ SKIPPED         (агент на паузе, run-state продвинут)
//	    ↘ FAILED          (ошибка, run-state НЕ продвинут, повтор в окне)
//	    ↘ ABANDONED       (терминальная ошибка, run-state продвинут)
type OutcomeKind string

const (
	// OutcomeExecuted — действие выполнено (в том числе "нечего отправлять").
	OutcomeExecuted OutcomeKind = "EXECUTED"

	// OutcomeSkipped — агент на паузе, выполнение пропущено без ошибки.
	OutcomeSkipped OutcomeKind = "SKIPPED"

	// OutcomeFailed — повторяемая ошибка.
	OutcomeFailed OutcomeKind = "FAILED"

	// OutcomeAbandoned — терминальная ошибка (например, агент удалён).
	OutcomeAbandoned OutcomeKind = "ABANDONED"
)

// Advances возвращает true, если после такого итога run-state продвигается.
func (k OutcomeKind) Advances() bool {
	switch k {
	case OutcomeExecuted, OutcomeSkipped, OutcomeAbandoned:
		return true
	default:
		return false
	}
}

// String возвращает строковое представление OutcomeKind.
func (k OutcomeKind) String() string {
	return string(k)
}

// Label возвращает значение для метрик и ключей аналитики.
func (k OutcomeKind) Label() string {
	switch k {
	case OutcomeExecuted:
		return "executed"
	case OutcomeSkipped:
		return "skipped"
	case OutcomeFailed:
		return "failed"
	case OutcomeAbandoned:
		return "abandoned"
	default:
		return "unknown"
	}
}
