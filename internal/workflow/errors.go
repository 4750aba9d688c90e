package workflow

import "errors"

// ErrWrongStep возвращается при вызове операции, недоступной на текущем этапе.
var (
	ErrWrongStep = errors.New("operation not allowed on current step")
	// ErrNoDailyPackages возвращается при попытке начать сканирование без посылок.
	ErrNoDailyPackages = errors.New("no daily packages")
	// ErrDuplicateTracking возвращается при добавлении посылки с уже существующим трек-номером.
	ErrDuplicateTracking = errors.New("tracking number already registered")
	// ErrUnknownTracking возвращается при сканировании трек-номера, не входящего в дневной список.
	ErrUnknownTracking = errors.New("tracking number not in daily list")
	// ErrAlreadyScanned возвращается при повторном сканировании посылки.
	ErrAlreadyScanned = errors.New("package already scanned")
	// ErrCategoryMismatch возвращается, если режим сканера не совпадает с категорией посылки.
	ErrCategoryMismatch = errors.New("package category mismatch")
	// ErrScanIncomplete возвращается при попытке начать доставку до полного сканирования партии.
	ErrScanIncomplete = errors.New("scan batch incomplete")
	// ErrPackageNotFound возвращается, если посылка отсутствует в соответствующей коллекции.
	ErrPackageNotFound = errors.New("package not found")
	// ErrEmptyRecipient возвращается при закрытии доставки без имени получателя.
	ErrEmptyRecipient = errors.New("recipient name required")
	// ErrEmptyProof возвращается при закрытии доставки или возврате без фотоподтверждения.
	ErrEmptyProof = errors.New("proof photo required")
	// ErrEmptyReason возвращается при переводе посылки в ожидание без причины.
	ErrEmptyReason = errors.New("pending reason required")
	// ErrEmptyLeader возвращается при возврате партии без имени принимающего лидера.
	ErrEmptyLeader = errors.New("leader name required")
)
