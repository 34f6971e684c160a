// Package sl содержит вспомогательные функции для работы с логгером slog.
// Упрощает формирование структурированных полей лога,
// например, для передачи информации об ошибках.
package sl

import "log/slog"

// Err возвращает slog.Attr с ключом "error" и значением текста ошибки.
// Для nil возвращает пустую строку, чтобы вызов был безопасен в defer и recover.
//
// Пример:
//
//	log.Error("failed to do something", sl.Err(err))
func Err(err error) slog.Attr {
	if err == nil {
		return slog.String("error", "")
	}
	return slog.Attr{
		Key:   "error",
		Value: slog.StringValue(err.Error()),
	}
}

// Panic возвращает атрибут с восстановленным значением паники.
func Panic(v any) slog.Attr {
	return slog.Any("panic", v)
}
