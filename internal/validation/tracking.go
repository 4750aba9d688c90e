// Package validation содержит функции валидации входных данных.
package validation

// maxTrackingLen ограничивает длину трек-номера на границе API.
const maxTrackingLen = 64

// IsValidTrackingNumber проверяет корректность формата трек-номера:
// непустая строка из латинских букв, цифр и дефисов.
func IsValidTrackingNumber(number string) bool {
	if number == "" || len(number) > maxTrackingLen {
		return false
	}

	for _, ch := range number {
		switch {
		case ch >= '0' && ch <= '9':
		case ch >= 'A' && ch <= 'Z':
		case ch >= 'a' && ch <= 'z':
		case ch == '-':
		default:
			return false
		}
	}

	return true
}
