package scheduler

import "errors"

// Ошибки планировщика.
//
// Классифицируются через errors.Is; конкретная причина добавляется
// обёрткой fmt.Errorf("%w: ...").
var (
	// ErrConfiguration — некорректные поля повторения или параметры действия.
	// Выполнение этого schedule невозможно, пока владелец не исправит его.
	ErrConfiguration = errors.New("schedule configuration error")

	// ErrPrerequisiteMissing — нет учётных данных или настроек для действия.
	ErrPrerequisiteMissing = errors.New("prerequisite missing")

	// ErrCollaborator — внешний сервис (суммаризация, доставка, звонок) вернул ошибку.
	ErrCollaborator = errors.New("collaborator failure")

	// ErrNotFound — schedule или агент удалены во время выполнения.
	ErrNotFound = errors.New("not found")

	// ErrUnknownAction — нет реализации для типа действия.
	ErrUnknownAction = errors.New("unknown action")
)

// IsTerminal возвращает true для ошибок, после которых run-state
// продвигается, несмотря на неудачу.
func IsTerminal(err error) bool {
	return errors.Is(err, ErrNotFound)
}
