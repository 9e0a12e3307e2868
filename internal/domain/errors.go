package domain

import "errors"

var (
	// Ошибка отсутствующего идентификатора клиента.
	ErrCustomerRequired = errors.New("customer_id is required")
	// Ошибка отсутствующего идентификатора товара.
	ErrProductIDRequired = errors.New("product_id is required")
	// Ошибка отсутствующего имени товара.
	ErrProductNameRequired = errors.New("product name is required")
	// Ошибка отрицательной цены товара.
	ErrProductPriceNegative = errors.New("product price must be non-negative")
	// Ошибка отрицательного остатка товара.
	ErrProductStockNegative = errors.New("product stock must be non-negative")
	// Ошибка при некорректном количестве (<= 0).
	ErrQtyInvalid = errors.New("qty must be greater than zero")
	// Ошибка отрицательной суммы продажи.
	ErrTotalNegative = errors.New("sale total must be non-negative")
	// Ошибка отсутствующего идентификатора заказа.
	ErrOrderIDRequired = errors.New("order_id is required")

	// ErrProductNotFound возвращается, если товар не найден в каталоге.
	ErrProductNotFound = errors.New("product not found")
	// ErrOrderNotFound возвращается, если заказ не найден.
	ErrOrderNotFound = errors.New("order not found")
	// ErrInsufficientStock — запрошенное количество превышает остаток.
	ErrInsufficientStock = errors.New("insufficient stock")
	// ErrUnauthenticated — у вызывающего нет аутентифицированной сессии.
	ErrUnauthenticated = errors.New("caller is not authenticated")
	// ErrForbidden — вызывающему не принадлежит затрагиваемый ресурс.
	ErrForbidden = errors.New("caller is not allowed to access this resource")
	// ErrConflictRetryable — транзакция проиграла гонку (serialization failure,
	// deadlock); вызывающий может безопасно повторить операцию целиком.
	ErrConflictRetryable = errors.New("transaction conflict, retry the operation")
	// ErrProductRetired — товар удалён из каталога; возврат остатка становится
	// no-op и фиксируется предупреждением, а не фатальной ошибкой.
	ErrProductRetired = errors.New("product retired from catalog")
	// ErrDuplicateProduct — товар с таким именем уже есть в каталоге.
	ErrDuplicateProduct = errors.New("product with this name already exists")

	// Ошибка пустого idempotency-key.
	ErrIdempotencyKeyRequired = errors.New("idempotency key is required")
	// Ошибка пустого хэша запроса для idempotency-записи.
	ErrIdempotencyRequestHashRequired = errors.New("idempotency request hash is required")
	// ErrIdempotencyKeyAlreadyExists — запись по ключу уже создана.
	ErrIdempotencyKeyAlreadyExists = errors.New("idempotency key already exists")
	// ErrIdempotencyKeyNotFound — запись по idempotency-key отсутствует.
	ErrIdempotencyKeyNotFound = errors.New("idempotency key not found")
	// ErrIdempotencyHashMismatch — idempotency-key повторно использован с другим телом запроса.
	ErrIdempotencyHashMismatch = errors.New("idempotency key reused with different request")

	// ErrOutboxPublish — ошибка при публикации сообщения из outbox.
	ErrOutboxPublish = errors.New("outbox publish failed")
)

// IsRetryable проверяет, допускает ли ошибка повтор операции вызывающим.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrConflictRetryable)
}

// IsNotFound проверяет, относится ли ошибка к отсутствующей сущности.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrProductNotFound) || errors.Is(err, ErrOrderNotFound)
}
