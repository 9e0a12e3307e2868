package domain

// Role — роль вызывающего в системе.
type Role string

const (
	RoleCustomer Role = "customer"
	RoleAdmin    Role = "admin"
	// RoleNone означает отсутствие аутентифицированной сессии.
	RoleNone Role = "none"
)

// Identity описывает вызывающего: кто он и какую роль держит.
// Передаётся явно в каждую операцию ядра; идентичность никогда не хранится
// в разделяемом состоянии процесса, чтобы конкурентные запросы не
// перезаписывали друг друга.
type Identity struct {
	CustomerID string
	Role       Role
}

// Anonymous возвращает пустую идентичность без роли.
func Anonymous() Identity {
	return Identity{Role: RoleNone}
}

// Authenticated сообщает, привязана ли идентичность к известному вызывающему.
func (i Identity) Authenticated() bool {
	return i.CustomerID != "" && i.Role != RoleNone
}

// IsAdmin сообщает, держит ли вызывающий административную роль.
func (i Identity) IsAdmin() bool {
	return i.Role == RoleAdmin
}
