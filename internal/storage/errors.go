// Package storage содержит ошибки, общие для всех реализаций хранилищ.
package storage

import "errors"

var (
	// ErrTokenNotFound токен входа не найден.
	ErrTokenNotFound = errors.New("token not found")
	// ErrTokenExpired срок токена входа истёк.
	ErrTokenExpired = errors.New("token expired")
	// ErrTokenAlreadyUsed токен входа уже погашен.
	ErrTokenAlreadyUsed = errors.New("token already used")

	// ErrIdentityNotFound личность не найдена.
	ErrIdentityNotFound = errors.New("identity not found")
	// ErrTierNotFound тариф не найден.
	ErrTierNotFound = errors.New("tier not found")
	// ErrPaymentNotFound запись платежа не найдена.
	ErrPaymentNotFound = errors.New("payment not found")
	// ErrSubscriptionNotFound подписка не найдена.
	ErrSubscriptionNotFound = errors.New("subscription not found")

	// ErrSettlementConflict платёж уже в терминальном статусе, повторная доставка.
	ErrSettlementConflict = errors.New("settlement conflict")
	// ErrPaymentMismatch сумма или валюта оплаты не совпала с записью.
	ErrPaymentMismatch = errors.New("payment amount mismatch")
)
